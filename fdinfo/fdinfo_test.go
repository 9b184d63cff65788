package fdinfo

import (
	"path/filepath"
	"testing"

	"github.com/ruaan-deysel/intelgpu/internal/testutil"
)

func TestListClients_AggregatesAcrossFds(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	testutil.WriteFile(t, filepath.Join(dir, "4242"), "comm", "ffmpeg\n")
	testutil.WriteFile(t, filepath.Join(dir, "4242", "fdinfo"), "5", ""+
		"pos:\t0\n"+
		"flags:\t02\n"+
		"drm-driver:\ti915\n"+
		"drm-client-id:\t7\n"+
		"drm-engine-video:\t1000000 ns\n"+
		"drm-engine-video-enhance:\t500000 ns\n")
	testutil.WriteFile(t, filepath.Join(dir, "4242", "fdinfo"), "9", ""+
		"drm-driver:\ti915\n"+
		"drm-engine-video:\t2000000 ns\n")

	testutil.WriteFile(t, filepath.Join(dir, "99"), "comm", "unrelated\n")
	testutil.WriteFile(t, filepath.Join(dir, "99", "fdinfo"), "3", "drm-driver:\tamdgpu\ndrm-engine-render:\t999 ns\n")

	orig := ProcPath
	ProcPath = dir
	defer func() { ProcPath = orig }()

	clients, err := ListClients([]string{"i915", "xe"})
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("len(clients) = %d, want 1", len(clients))
	}
	c := clients[0]
	if c.PID != 4242 || c.Name != "ffmpeg" {
		t.Errorf("client = %+v, want pid 4242 name ffmpeg", c)
	}
	if c.VideoNs != 3_000_000 {
		t.Errorf("VideoNs = %d, want 3000000 (summed across both fds)", c.VideoNs)
	}
	if c.VideoEnhanceNs != 500_000 {
		t.Errorf("VideoEnhanceNs = %d, want 500000", c.VideoEnhanceNs)
	}
}

func TestFindQuicksyncClients_FiltersToVideoUsers(t *testing.T) {
	clients := []Client{
		{PID: 1, VideoNs: 0, VideoEnhanceNs: 0},
		{PID: 2, VideoNs: 100},
		{PID: 3, VideoEnhanceNs: 100},
	}
	got := FindQuicksyncClients(clients)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].PID != 2 || got[1].PID != 3 {
		t.Errorf("got = %+v", got)
	}
}
