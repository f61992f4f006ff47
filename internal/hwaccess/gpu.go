// Package hwaccess implements Component E of spec §4: the host-time GPU
// device catalog scan, post-pivot /etc/group reconciliation, and the Termux
// tmpfs bridge for X11/VirGL socket sharing. Grounded on the teacher's
// internal/pkg/util/gpu paths catalog (device-node enumeration by known
// path list) and internal/pkg/security/selinux for context handling.
package hwaccess

import (
	"os"
	"syscall"

	"github.com/ccoveille/go-safecast"
	"github.com/maazm7d/droidspaces/pkg/sylog"
)

// gpuCatalog is the fixed set of device-node paths scanned for GPU group
// ownership (spec §4.D). Catalog order only affects tie-break in
// deduplication reporting; the resulting set is what matters.
var gpuCatalog = []string{
	"/dev/dri/card0", "/dev/dri/renderD128", "/dev/dri/renderD129",
	"/dev/nvidia0", "/dev/nvidiactl", "/dev/nvidia-uvm", "/dev/nvidia-uvm-tools",
	"/dev/nvidia-caps/nvidia-cap1", "/dev/nvidia-caps/nvidia-cap2",
	"/dev/mali0",
	"/dev/kgsl-3d0",
	"/dev/kfd",
	"/dev/pvrsrvkm",
	"/dev/nvhost-ctrl", "/dev/nvhost-gpu", "/dev/nvhost-as-gpu", "/dev/nvhost-ctrl-gpu",
	"/dev/dma_heap/system", "/dev/dma_heap/system-uncached",
	"/dev/sw_sync",
}

// ScanGPUDevices stats every path in gpuCatalog and returns the set of
// unique, non-zero owning GIDs (invariant I1: must run before pivot_root,
// while the host /dev is still visible).
func ScanGPUDevices(sink sylog.Sink) []uint32 {
	seen := map[uint32]bool{}
	var gids []uint32
	for _, path := range gpuCatalog {
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		stat, ok := fi.Sys().(*syscall.Stat_t)
		if !ok {
			continue
		}
		gid, err := safecast.ToUint32(stat.Gid)
		if err != nil {
			sink.Warningf("gid of %s does not fit in uint32: %v", path, err)
			continue
		}
		if gid == 0 || seen[gid] {
			continue
		}
		seen[gid] = true
		gids = append(gids, gid)
		sink.Debugf("found GPU device %s owned by gid %d", path, gid)
	}
	return gids
}
