package mandel

import (
	"bytes"
	"errors"
	"image"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/marben/perturb_mandel/bigfloat"
	"github.com/marben/perturb_mandel/dispatch"
	"github.com/marben/perturb_mandel/perturb"
)

func TestSplitTiles(t *testing.T) {
	tests := []struct {
		r      image.Rectangle
		tw, th int
		count  int
		last   image.Rectangle
	}{
		{image.Rect(0, 0, 128, 128), 64, 64, 4, image.Rect(64, 64, 128, 128)},
		{image.Rect(0, 0, 100, 50), 64, 64, 2, image.Rect(64, 0, 100, 50)},
		{image.Rect(10, 20, 30, 40), 7, 9, 9, image.Rect(24, 38, 30, 40)},
		{image.Rect(0, 0, 0, 0), 8, 8, 0, image.Rectangle{}},
	}
	for _, tt := range tests {
		tiles := SplitTiles(tt.r, tt.tw, tt.th)
		if len(tiles) != tt.count {
			t.Errorf("SplitTiles(%v, %d, %d) gave %d tiles, want %d", tt.r, tt.tw, tt.th, len(tiles), tt.count)
			continue
		}
		area := 0
		for _, tile := range tiles {
			if !tile.In(tt.r) {
				t.Errorf("tile %v outside %v", tile, tt.r)
			}
			area += tile.Dx() * tile.Dy()
		}
		if area != tt.r.Dx()*tt.r.Dy() {
			t.Errorf("SplitTiles(%v) covers %d pixels, want %d", tt.r, area, tt.r.Dx()*tt.r.Dy())
		}
		if tt.count > 0 && tiles[len(tiles)-1] != tt.last {
			t.Errorf("last tile = %v, want %v", tiles[len(tiles)-1], tt.last)
		}
	}
}

func TestSplitTilesPanicsOnEmptyTile(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("SplitTiles with zero tile width did not panic")
		}
	}()
	SplitTiles(image.Rect(0, 0, 10, 10), 0, 10)
}

func TestParsePrecision(t *testing.T) {
	tests := []struct {
		coords []string
		min    uint
		max    uint
	}{
		{[]string{"-0.5", "0", "4"}, 64, 64 + 7},
		{[]string{"1e-2000"}, 6600, 6800},
		{[]string{"-0.743643887037158704752191506114774"}, 170, 180},
		{[]string{"2.5E+300", "1"}, 1000, 1100},
		{[]string{"1e-99999999999999999999"}, 1 << 31, math.MaxUint},
	}
	for _, tt := range tests {
		got := ParsePrecision(tt.coords...)
		if got < tt.min || got > tt.max {
			t.Errorf("ParsePrecision(%q) = %d, want in [%d, %d]", tt.coords, got, tt.min, tt.max)
		}
	}
}

func TestRenderRequestViewport(t *testing.T) {
	req := DeepSeahorse.Request(3, 400, 300)
	vp, err := req.Viewport()
	if err != nil {
		t.Fatal(err)
	}
	want := bigfloat.MustParse(DeepSeahorse.CenterX, 512)
	if diff := vp.CenterX.Sub(want).Abs(); diff.Cmp(bigfloat.MustParse("1e-50", 512)) > 0 {
		t.Errorf("center x off by %v", diff)
	}
	// Height follows the 4:3 canvas.
	ratio := vp.Height.Quo(vp.Width).Float64()
	if ratio != 0.75 {
		t.Errorf("height/width = %v, want 0.75", ratio)
	}

	req.Width = "-1"
	if _, err := req.Viewport(); err == nil {
		t.Error("negative width accepted")
	}
	req.Width = "wide"
	if _, err := req.Viewport(); !errors.Is(err, bigfloat.ErrSyntax) {
		t.Errorf("err = %v, want ErrSyntax", err)
	}
}

func TestRenderRequestJob(t *testing.T) {
	req := SeahorseValley.Request(3, 100, 60)
	req.MaxIterations = 250
	req.TileSize = 32

	job, tiles, err := req.Job(dispatch.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if job.Generation != 3 {
		t.Errorf("Generation = %d, want 3", job.Generation)
	}
	if job.Plan.MaxIterations != 250 || job.Plan.Tier != dispatch.TierNative {
		t.Errorf("plan = %v, want 250 iterations on the native tier", job.Plan)
	}
	if len(tiles) != 8 {
		t.Errorf("len(tiles) = %d, want 8", len(tiles))
	}

	req.Tier = dispatch.TierExtended
	job, _, err = req.Job(dispatch.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if job.Plan.Tier != dispatch.TierExtended {
		t.Errorf("forced tier = %v, want extended", job.Plan.Tier)
	}

	req.CanvasHeight = 0
	if _, _, err := req.Job(dispatch.DefaultConfig()); !errors.Is(err, dispatch.ErrCanvas) {
		t.Errorf("Job() with empty canvas error = %v, want ErrCanvas", err)
	}
}

func TestRenderRequestPrecisionLimit(t *testing.T) {
	cfg := dispatch.DefaultConfig()
	for _, req := range []RenderRequest{
		{Generation: 1, CenterX: "0", CenterY: "0", Width: "4e-300000", CanvasWidth: 8, CanvasHeight: 8},
		{Generation: 1, CenterX: "0", CenterY: "0", Width: "4e-99999999999999999999", CanvasWidth: 8, CanvasHeight: 8},
		{Generation: 1, CenterX: "0", CenterY: "0", Width: "4", Precision: 1 << 20, CanvasWidth: 8, CanvasHeight: 8},
	} {
		_, _, err := req.Estimate(cfg)
		var pe *dispatch.PrecisionError
		if !errors.As(err, &pe) {
			t.Errorf("Estimate(width %s, precision %d) = %v, want *PrecisionError", req.Width, req.Precision, err)
			continue
		}
		if pe.Max != cfg.MaxPrecision || pe.Bits <= pe.Max {
			t.Errorf("PrecisionError = %+v", pe)
		}
		if _, err := req.Plan(cfg); !errors.As(err, &pe) {
			t.Errorf("Plan() = %v, want *PrecisionError", err)
		}
	}

	vp, est, err := Needle.Request(1, 16, 16).Estimate(cfg)
	if err != nil {
		t.Fatalf("Estimate(needle) = %v", err)
	}
	if est.Bits <= 64 || vp.CenterX.Prec() != Needle.Request(1, 16, 16).Bits() {
		t.Errorf("Estimate(needle) = %+v at %d bits", est, vp.CenterX.Prec())
	}
}

func TestLandmarks(t *testing.T) {
	for _, l := range Landmarks {
		got, ok := LandmarkByName(l.Name)
		if !ok || got != l {
			t.Errorf("LandmarkByName(%q) = %v, %v", l.Name, got, ok)
		}
		if _, err := l.Request(1, 16, 16).Viewport(); err != nil {
			t.Errorf("landmark %s: %v", l.Name, err)
		}
	}
	if _, ok := LandmarkByName("nowhere"); ok {
		t.Error("LandmarkByName(nowhere) found something")
	}
}

func TestMessageFrames(t *testing.T) {
	cfg := dispatch.DefaultConfig()
	cfg.MaxIterations = 100
	vp, err := Home.Request(1, 8, 8).Viewport()
	if err != nil {
		t.Fatal(err)
	}
	plan, err := dispatch.NewPlan(vp, 8, 8, cfg)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	tile := image.Rect(0, 0, 4, 4)
	for _, m := range []Message{
		{Job: &Job{Generation: 7, Plan: plan}},
		{Tile: &TileRequest{Generation: 7, Tile: tile}},
	} {
		if err := enc.Encode(m); err != nil {
			t.Fatal(err)
		}
	}

	dec := cbor.NewDecoder(&buf)
	var job, req Message
	if err := dec.Decode(&job); err != nil {
		t.Fatal(err)
	}
	if err := dec.Decode(&req); err != nil {
		t.Fatal(err)
	}
	if job.Job == nil || job.Tile != nil || job.Job.Generation != 7 {
		t.Fatalf("job frame = %+v", job)
	}
	if req.Tile == nil || req.Job != nil || req.Tile.Tile != tile {
		t.Fatalf("tile frame = %+v", req)
	}
	got := job.Job.Plan.RenderTile(req.Tile.Tile)
	want := plan.RenderTile(tile)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pixel %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUpdateFrames(t *testing.T) {
	u := Update{Result: &TileResult{Generation: 2, Tile: image.Rect(0, 0, 1, 1), Results: []perturb.Result{{Iterations: 5, MaxIterations: 10, Escaped: true}}}}
	b, err := cbor.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	var got Update
	if err := cbor.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Done != nil || got.Err != nil || got.Result == nil || got.Result.Results[0] != u.Result.Results[0] {
		t.Errorf("decoded %+v", got)
	}

	e := &RenderError{Generation: 4, Msg: "superseded"}
	if !strings.Contains(e.Error(), "render 4") {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	if Logger().Enabled(t.Context(), slog.LevelError) {
		t.Fatal("default logger is enabled")
	}
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	Logger().Info("hello", "tiles", 3)
	if !strings.Contains(buf.String(), "tiles=3") {
		t.Errorf("log output = %q", buf.String())
	}
	SetLogger(nil)
	if Logger().Enabled(t.Context(), slog.LevelError) {
		t.Error("SetLogger(nil) did not restore the silent logger")
	}
}
