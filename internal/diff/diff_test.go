package diff

import (
	"testing"
)

const sampleDiff = `diff --git a/gatekeeper/gk_input_handler.go b/gatekeeper/gk_input_handler.go
index 1111111..2222222 100644
--- a/gatekeeper/gk_input_handler.go
+++ b/gatekeeper/gk_input_handler.go
@@ -40,7 +40,8 @@ type Params struct {
 	Temperature *float64
 	MaxTokens   *int
-	TopP        *float64
+	TopP *float64
+	TopK *float64
 	Stream      bool
@@ -158,5 +160,4 @@ func handle(client *Client) {
 	resp, err := client.Call()
-	defer client.Close()
 	if err != nil {
 		return
 	}
`

func TestParse(t *testing.T) {
	t.Parallel()

	files, err := Parse(sampleDiff)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}

	file := files[0]
	if file.NewPath != "gatekeeper/gk_input_handler.go" {
		t.Errorf("unexpected new path %q", file.NewPath)
	}
	if len(file.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(file.Hunks))
	}

	first := file.Hunks[0]
	if first.OldStart != 40 || first.NewStart != 40 {
		t.Errorf("unexpected hunk starts old=%d new=%d", first.OldStart, first.NewStart)
	}
	if first.Header != "type Params struct {" {
		t.Errorf("unexpected hunk header %q", first.Header)
	}

	second := file.Hunks[1]
	if second.OldStart != 158 || second.NewStart != 160 {
		t.Errorf("unexpected second hunk starts old=%d new=%d", second.OldStart, second.NewStart)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		targetLine int
		wantFound  bool
		wantKind   Kind
		wantOld    int
		wantNew    int
	}{
		{
			name:       "added_line_matches_new_counter",
			targetLine: 43,
			wantFound:  true,
			wantKind:   KindAdded,
			wantOld:    0,
			wantNew:    43,
		},
		{
			name:       "deleted_line_matches_old_counter",
			targetLine: 159,
			wantFound:  true,
			wantKind:   KindDeleted,
			wantOld:    159,
			wantNew:    0,
		},
		{
			name:       "context_line_carries_both_numbers",
			targetLine: 40,
			wantFound:  true,
			wantKind:   KindContext,
			wantOld:    40,
			wantNew:    40,
		},
		{
			name:       "line_outside_all_hunks",
			targetLine: 500,
			wantFound:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pos, found := Classify(sampleDiff, tc.targetLine)
			if found != tc.wantFound {
				t.Fatalf("found=%v want %v", found, tc.wantFound)
			}
			if !found {
				return
			}
			if pos.Kind != tc.wantKind {
				t.Errorf("kind=%q want %q", pos.Kind, tc.wantKind)
			}
			if pos.OldLine != tc.wantOld || pos.NewLine != tc.wantNew {
				t.Errorf("old=%d new=%d want old=%d new=%d", pos.OldLine, pos.NewLine, tc.wantOld, tc.wantNew)
			}
		})
	}
}

func TestClassifyBareHunkBody(t *testing.T) {
	t.Parallel()

	// GitLab's changes endpoint returns per-file diffs without the
	// "diff --git" header.
	bare := "@@ -1,3 +1,4 @@\n context\n+added\n context\n context\n"

	pos, found := Classify(bare, 2)
	if !found {
		t.Fatal("expected line 2 to be found")
	}
	if pos.Kind != KindAdded || pos.NewLine != 2 {
		t.Errorf("got kind=%q new=%d, want added line 2", pos.Kind, pos.NewLine)
	}
}

func TestClassifyStopsAtHunkEnd(t *testing.T) {
	t.Parallel()

	// Newline-terminated input splits into a trailing empty element. It
	// must not read as one more context line past the declared counts.
	bare := "@@ -1,3 +1,4 @@\n context\n+added\n context\n context\n"

	files, err := Parse(bare)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := len(files[0].Hunks[0].Lines); got != 4 {
		t.Errorf("expected 4 classified lines, got %d", got)
	}

	if pos, found := Classify(bare, 5); found {
		t.Errorf("line 5 is outside the hunk, got %+v", pos)
	}
}

func TestClassifyHeaderWithoutCounts(t *testing.T) {
	t.Parallel()

	bare := "@@ -1 +1 @@\n-old\n+new\n"

	pos, found := Classify(bare, 1)
	if !found {
		t.Fatal("expected line 1 to be found")
	}
	if pos.Kind != KindDeleted || pos.OldLine != 1 {
		t.Errorf("got kind=%q old=%d, want deleted line 1", pos.Kind, pos.OldLine)
	}
}

func TestHasDeletedOldLine(t *testing.T) {
	t.Parallel()

	if !HasDeletedOldLine(sampleDiff, 159) {
		t.Error("expected old line 159 to be reported deleted")
	}
	if HasDeletedOldLine(sampleDiff, 40) {
		t.Error("context line 40 must not be reported deleted")
	}
}

func TestNoNewlineMarkerSkipped(t *testing.T) {
	t.Parallel()

	bare := "@@ -1,2 +1,2 @@\n context\n-old\n+new\n\\ No newline at end of file\n"
	files, err := Parse(bare)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(files) != 1 || len(files[0].Hunks) != 1 {
		t.Fatalf("unexpected parse shape: %+v", files)
	}
	if got := len(files[0].Hunks[0].Lines); got != 3 {
		t.Errorf("expected 3 classified lines, got %d", got)
	}
}

func TestSide(t *testing.T) {
	t.Parallel()

	if got := (Position{Kind: KindDeleted}).Side(); got != "LEFT" {
		t.Errorf("deleted side=%q want LEFT", got)
	}
	if got := (Position{Kind: KindAdded}).Side(); got != "RIGHT" {
		t.Errorf("added side=%q want RIGHT", got)
	}
	if got := (Position{Kind: KindDeleted}).GiteaSide(); got != "previous" {
		t.Errorf("deleted gitea side=%q want previous", got)
	}
	if got := (Position{Kind: KindContext}).GiteaSide(); got != "proposed" {
		t.Errorf("context gitea side=%q want proposed", got)
	}
}
