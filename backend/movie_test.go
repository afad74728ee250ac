package backend

import (
	"math"
	"testing"
	"time"
)

func TestParseSyncState(t *testing.T) {
	tests := []struct {
		in   string
		want SyncState
	}{
		{"PENDING_CREATE", SyncPendingCreate},
		{"pending_update", SyncPendingUpdate},
		{" PENDING_DELETE ", SyncPendingDelete},
		{"FAILED", SyncFailed},
		{"SYNCED", SyncSynced},
		{"", SyncSynced},
		{"ARCHIVED", SyncSynced},
	}
	for _, tt := range tests {
		if got := ParseSyncState(tt.in); got != tt.want {
			t.Errorf("ParseSyncState(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNeedsPush(t *testing.T) {
	want := map[SyncState]bool{
		SyncPendingCreate: true,
		SyncPendingUpdate: true,
		SyncFailed:        true,
		SyncPendingDelete: false,
		SyncSynced:        false,
	}
	for st, w := range want {
		if got := st.NeedsPush(); got != w {
			t.Errorf("%s.NeedsPush() = %v, want %v", st, got, w)
		}
	}
}

func TestParseFlag(t *testing.T) {
	if f, err := ParseFlag("Not-Interested"); err != nil || f != FlagNotInterested {
		t.Errorf("ParseFlag(Not-Interested) = %q, %v", f, err)
	}
	if _, err := ParseFlag("liked"); err == nil {
		t.Error("ParseFlag(liked) should fail")
	}
}

func TestFlagChangeValidate(t *testing.T) {
	high := 5.5
	ok := 2.5
	nan := math.NaN()
	tests := []struct {
		name    string
		change  FlagChange
		wantErr bool
	}{
		{"seen", SetFlag(FlagSeen, true), false},
		{"rating in range", SetRating(&ok), false},
		{"rating cleared", SetRating(nil), false},
		{"rating too high", SetRating(&high), true},
		{"rating NaN", SetRating(&nan), true},
		{"derived flag", SetFlag(FlagRecommended, true), true},
		{"unknown", SetFlag(Flag("x"), true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.change.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyClearsAIReasonAndTagsDirty(t *testing.T) {
	at := time.UnixMilli(2000)
	for _, f := range []Flag{FlagSeen, FlagWatchlist, FlagNotInterested} {
		reason := "recommended"
		r := MovieRecord{ID: 1, Title: "x", AIReason: &reason, SyncState: SyncSynced, LastModified: time.UnixMilli(1000)}
		r.Apply(SetFlag(f, true), at)

		if r.AIReason != nil {
			t.Errorf("%s: aiReason should be cleared", f)
		}
		if r.SyncState != SyncPendingUpdate {
			t.Errorf("%s: syncState = %s, want PENDING_UPDATE", f, r.SyncState)
		}
		if ToMillis(r.LastModified) != 2000 {
			t.Errorf("%s: lastModified = %d, want 2000", f, ToMillis(r.LastModified))
		}
	}

	reason := "kept"
	r := MovieRecord{ID: 1, Title: "x", AIReason: &reason, SyncState: SyncPendingCreate}
	r.Apply(SetFlag(FlagFavorite, true), at)
	if r.AIReason == nil {
		t.Error("favorite must not clear aiReason")
	}
	if r.SyncState != SyncPendingCreate {
		t.Errorf("new record should stay PENDING_CREATE, got %s", r.SyncState)
	}
}

func TestMatchesHidesPendingDelete(t *testing.T) {
	r := MovieRecord{ID: 1, IsWatchlist: true, SyncState: SyncPendingDelete}
	if r.Matches(FlagWatchlist) {
		t.Error("records awaiting deletion should not match any flag")
	}
	r.SyncState = SyncSynced
	if !r.Matches(FlagWatchlist) {
		t.Error("watchlist record should match")
	}
}

func TestValidate(t *testing.T) {
	bad := -0.5
	nan := math.NaN()
	tests := []struct {
		name    string
		rec     MovieRecord
		wantErr bool
	}{
		{"valid", MovieRecord{ID: 1, Title: "Heat"}, false},
		{"missing title", MovieRecord{ID: 1}, true},
		{"zero id", MovieRecord{Title: "Heat"}, true},
		{"negative rating", MovieRecord{ID: 1, Title: "Heat", Rating: &bad}, true},
		{"NaN rating", MovieRecord{ID: 1, Title: "Heat", Rating: &nan}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.rec.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDocumentRecordNormalizesToSynced(t *testing.T) {
	rec := MovieRecord{
		ID:           42,
		Title:        "Heat",
		IsWatchlist:  true,
		AddedAt:      time.UnixMilli(500),
		LastModified: time.UnixMilli(2000),
		SyncState:    SyncPendingUpdate,
	}
	doc := ToDocument(rec)
	if doc.LastModified != 2000 || doc.AddedAt != 500 {
		t.Errorf("document timestamps = %d/%d", doc.AddedAt, doc.LastModified)
	}

	back := doc.Record()
	if back.SyncState != SyncSynced {
		t.Errorf("remote read must be SYNCED, got %s", back.SyncState)
	}
	back.SyncState = rec.SyncState
	if !back.Equal(rec) {
		t.Errorf("document conversion lost data:\n got %+v\nwant %+v", back, rec)
	}
}
