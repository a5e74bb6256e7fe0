package database

import "testing"

func messageIDs(page *ThreadPage) []int64 {
	ids := make([]int64, len(page.Messages))
	for i, msg := range page.Messages {
		ids[i] = msg.ID
	}
	return ids
}

func assertOrder(t *testing.T, page *ThreadPage, want []int64) {
	t.Helper()
	got := messageIDs(page)
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %d, got %d (full order %v)", i, want[i], got[i], got)
		}
	}
}

func TestListPageRootThenRepliesOldestFirst(t *testing.T) {
	db := newTestDB(t)
	user := mustUser(t, db, "alice")

	// Root R at t=0 with replies A(t=1), B(t=2) both parented to R.
	rootID := int64(100001)
	insertMessageAt(t, db, rootID, user.ID, nil, "R", 0)
	insertMessageAt(t, db, 100002, user.ID, &rootID, "A", 1)
	insertMessageAt(t, db, 100003, user.ID, &rootID, "B", 2)

	page, err := db.ListPage(1)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}

	assertOrder(t, page, []int64{100001, 100002, 100003})
}

func TestListPageNewestThreadsFirst(t *testing.T) {
	db := newTestDB(t)
	user := mustUser(t, db, "alice")

	oldRoot := int64(100001)
	newRoot := int64(100002)
	insertMessageAt(t, db, oldRoot, user.ID, nil, "old root", 100)
	insertMessageAt(t, db, newRoot, user.ID, nil, "new root", 200)
	// Reply to the old thread arrives after the new root; the old thread
	// keeps its position because ordering keys on the root's own timestamp.
	insertMessageAt(t, db, 100003, user.ID, &oldRoot, "late reply", 300)

	page, err := db.ListPage(1)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}

	assertOrder(t, page, []int64{100002, 100001, 100003})
}

func TestListPageNestedThreadExpansion(t *testing.T) {
	db := newTestDB(t)
	user := mustUser(t, db, "alice")

	rootID := int64(100001)
	childID := int64(100002)
	grandchildID := int64(100003)
	insertMessageAt(t, db, rootID, user.ID, nil, "root", 0)
	insertMessageAt(t, db, childID, user.ID, &rootID, "child", 10)
	insertMessageAt(t, db, grandchildID, user.ID, &childID, "grandchild", 20)

	page, err := db.ListPage(1)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}

	assertOrder(t, page, []int64{rootID, childID, grandchildID})

	for _, msg := range page.Messages {
		if msg.RootID != rootID {
			t.Fatalf("message %d: expected root %d, got %d", msg.ID, rootID, msg.RootID)
		}
	}
}

func TestListPageExpansionKeysOnParentNotInsertionOrder(t *testing.T) {
	db := newTestDB(t)
	user := mustUser(t, db, "alice")

	// The reply row is inserted before its thread's root row exists in the
	// scan order (higher id, earlier timestamp page position); expansion must
	// still find it via parent_id alone.
	rootA := int64(900001)
	rootB := int64(100001)
	insertMessageAt(t, db, rootA, user.ID, nil, "thread A", 100)
	insertMessageAt(t, db, rootB, user.ID, nil, "thread B", 200)
	insertMessageAt(t, db, 500001, user.ID, &rootA, "reply in A", 150)

	page, err := db.ListPage(1)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}

	assertOrder(t, page, []int64{rootB, rootA, 500001})
}

func TestListPagePagination(t *testing.T) {
	db := newTestDB(t)
	user := mustUser(t, db, "alice")

	for i := 0; i < 12; i++ {
		insertMessageAt(t, db, int64(100001+i), user.ID, nil, "root", int64(i*10))
	}

	page1, err := db.ListPage(1)
	if err != nil {
		t.Fatalf("ListPage(1) failed: %v", err)
	}
	if page1.TotalPages != 2 {
		t.Fatalf("expected 2 total pages, got %d", page1.TotalPages)
	}
	if len(page1.Messages) != 10 {
		t.Fatalf("expected 10 messages on page 1, got %d", len(page1.Messages))
	}
	// Newest root first.
	if page1.Messages[0].ID != 100012 {
		t.Fatalf("expected newest root 100012 first, got %d", page1.Messages[0].ID)
	}

	page2, err := db.ListPage(2)
	if err != nil {
		t.Fatalf("ListPage(2) failed: %v", err)
	}
	if len(page2.Messages) != 2 {
		t.Fatalf("expected 2 messages on page 2, got %d", len(page2.Messages))
	}
}

func TestListPageOutOfRange(t *testing.T) {
	db := newTestDB(t)
	user := mustUser(t, db, "alice")

	insertMessageAt(t, db, 100001, user.ID, nil, "root", 0)

	page, err := db.ListPage(99)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("expected empty page, got %d messages", len(page.Messages))
	}
	if page.TotalPages != 1 {
		t.Fatalf("expected totalPages unaffected by page number, got %d", page.TotalPages)
	}
	if page.Page != 99 {
		t.Fatalf("expected requested page echoed, got %d", page.Page)
	}
}

func TestListPageEmptyBoard(t *testing.T) {
	db := newTestDB(t)

	page, err := db.ListPage(1)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(page.Messages))
	}
	if page.TotalPages != 0 {
		t.Fatalf("expected 0 total pages, got %d", page.TotalPages)
	}
}
