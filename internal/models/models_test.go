package models

import "testing"

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %s", base.ID)
	}
}

func TestSnapshotUsesBaseBeforeCreate(t *testing.T) {
	snap := &ConnectionSnapshot{Reason: "manual"}
	if err := snap.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if snap.ID == "" {
		t.Fatal("expected snapshot ID to be generated")
	}
}

func TestKVEntryTableName(t *testing.T) {
	if got := (KVEntry{}).TableName(); got != "kv_entries" {
		t.Fatalf("unexpected table name %q", got)
	}
}
