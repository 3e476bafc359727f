package wire

import (
	"errors"
	"testing"
)

func TestParseSample_Shapes(t *testing.T) {
	cases := map[string]Sample{
		`{"seconds":12.5,"duration":100}`:                       {Position: 12.5, Duration: 100},
		`{"currentTime":3,"duration":"60"}`:                     {Position: 3, Duration: 60},
		`"{\"seconds\":7,\"duration\":70}"`:                     {Position: 7, Duration: 70},
		`{"playerCurrentTime":"4.0","mediaDurationSecs":40}`:    {Position: 4, Duration: 40},
		`{"seconds":1,"currentTime":99,"duration":10,"x":true}`: {Position: 1, Duration: 10},
	}
	for raw, want := range cases {
		got, err := ParseSample([]byte(raw))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%s: expected %+v, got %+v", raw, want, got)
		}
	}
}

func TestParseSample_Malformed(t *testing.T) {
	for _, raw := range []string{
		``,
		`null`,
		`[1,2]`,
		`{"seconds":5}`,
		`{"duration":5}`,
		`{"seconds":"abc","duration":5}`,
		`"not json"`,
	} {
		if _, err := ParseSample([]byte(raw)); !errors.Is(err, ErrMalformedSample) {
			t.Fatalf("%q: expected ErrMalformedSample, got %v", raw, err)
		}
	}
}

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`"{\"context\":\"player.js\",\"version\":\"1.0\",\"event\":\"timeupdate\",\"value\":{\"seconds\":1,\"duration\":2}}"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Event != "timeupdate" {
		t.Fatalf("expected timeupdate, got %q", f.Event)
	}
	s, err := ParseSample(f.Value)
	if err != nil || s.Duration != 2 {
		t.Fatalf("expected embedded sample, got %+v (%v)", s, err)
	}

	if _, err := ParseFrame([]byte(`{"context":"other","event":"ready"}`)); !errors.Is(err, ErrForeignFrame) {
		t.Fatalf("expected ErrForeignFrame, got %v", err)
	}
}

func TestMethodFrame(t *testing.T) {
	raw, err := MethodFrame("addEventListener", "timeupdate", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if f.Method != "addEventListener" || string(f.Value) != `"timeupdate"` || f.Version != FrameVersion {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestParseSeconds(t *testing.T) {
	for raw, want := range map[string]float64{`12.5`: 12.5, `"7"`: 7} {
		got, err := ParseSeconds([]byte(raw))
		if err != nil || got != want {
			t.Fatalf("%s: expected %v, got %v (%v)", raw, want, got, err)
		}
	}
	if _, err := ParseSeconds([]byte(`{"x":1}`)); !errors.Is(err, ErrMalformedSample) {
		t.Fatalf("expected ErrMalformedSample, got %v", err)
	}
}

func TestSampleFromMap_KeyScanIsDeterministic(t *testing.T) {
	m := map[string]any{"current_time": 5.0, "currentTimeMs": 5000.0, "videoDuration": 10.0, "durationMs": 10000.0}
	first, err := SampleFromMap(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// "currentTimeMs" sorts before "current_time", "durationMs" before "videoDuration".
	if first.Position != 5000 || first.Duration != 10000 {
		t.Fatalf("expected first sorted keys to win, got %+v", first)
	}
	for i := 0; i < 50; i++ {
		got, err := SampleFromMap(m)
		if err != nil || got != first {
			t.Fatalf("expected %+v on every call, got %+v (%v)", first, got, err)
		}
	}
}
