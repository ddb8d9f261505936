package media

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		path string
		want FileType
		ok   bool
	}{
		{"/dcim/IMG_0001.JPG", Photo, true},
		{"/dcim/IMG_0002.cr2", Photo, true},
		{"/dcim/MVI_0003.MOV", Video, true},
		{"/dcim/clip.mp4", Video, true},
		{"/dcim/readme.txt", Photo, false},
		{"/dcim/noext", Photo, false},
	}
	for _, tc := range cases {
		got, ok := Classify(tc.path)
		if ok != tc.ok {
			t.Fatalf("Classify(%q) ok = %v, want %v", tc.path, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("Classify(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestTypeCounterSummary(t *testing.T) {
	var c TypeCounter
	c.Add(Photo, 100)
	c.Add(Photo, 200)
	c.Add(Video, 5000)

	if got := c.Summary(); got != "2 photos and 1 video" {
		t.Fatalf("Summary() = %q", got)
	}
	if c.Total() != 3 {
		t.Fatalf("Total() = %d, want 3", c.Total())
	}
	if c.TotalBytes() != 5300 {
		t.Fatalf("TotalBytes() = %d, want 5300", c.TotalBytes())
	}
	if c.Bytes(Video) != 5000 {
		t.Fatalf("Bytes(Video) = %d, want 5000", c.Bytes(Video))
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusCopied.Terminal() {
		t.Fatal("copied should not be terminal")
	}
	if !StatusFinished.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("finished and failed should be terminal")
	}
}
