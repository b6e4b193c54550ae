package monitor

import (
	"cmp"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/logger"
)

// MountGroup is a set of storage paths sharing one filesystem.
type MountGroup struct {
	MountPoint string
	Device     string
	Fstype     string
	Paths      []string
}

// StoragePaths returns the directories capture persistence writes to: the
// image output directory and the SQLite database directory.
func StoragePaths(settings *conf.Settings) []string {
	var paths []string
	if settings.Output.Path != "" {
		paths = append(paths, settings.Output.Path)
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path != "" {
		paths = append(paths, filepath.Dir(settings.Output.SQLite.Path))
	}
	return deduplicatePaths(paths)
}

// deduplicatePaths cleans, absolutizes and deduplicates paths.
func deduplicatePaths(paths []string) []string {
	seen := make(map[string]bool)
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		cleaned := filepath.Clean(os.ExpandEnv(p))
		if !filepath.IsAbs(cleaned) {
			if abs, err := filepath.Abs(cleaned); err == nil {
				cleaned = abs
			}
		}
		if !seen[cleaned] {
			seen[cleaned] = true
			unique = append(unique, cleaned)
		}
	}
	return unique
}

// resolveExisting follows symlinks, walking up to the nearest existing
// parent so a not yet created output directory still maps to a mount.
func resolveExisting(path string) string {
	for p := path; ; p = filepath.Dir(p) {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return resolved
		}
		if parent := filepath.Dir(p); parent == p {
			return path
		}
	}
}

// mountFor returns the partition with the longest mount point prefix of path.
func mountFor(path string, partitions []disk.PartitionStat) (disk.PartitionStat, bool) {
	var best disk.PartitionStat
	bestLen := 0
	for _, p := range partitions {
		mp := p.Mountpoint
		if path == mp || mp == "/" || strings.HasPrefix(path, mp+"/") {
			if len(mp) > bestLen {
				best, bestLen = p, len(mp)
			}
		}
	}
	return best, bestLen > 0
}

// groupByMount groups paths by filesystem so each disk is checked once.
func groupByMount(paths []string, partitions []disk.PartitionStat, resolve func(string) string) []MountGroup {
	groups := make(map[string]*MountGroup)
	for _, path := range paths {
		p, ok := mountFor(resolve(path), partitions)
		if !ok {
			GetLogger().Debug("skipping path without mount point", logger.String("path", path))
			continue
		}
		if g, exists := groups[p.Mountpoint]; exists {
			g.Paths = append(g.Paths, path)
			continue
		}
		groups[p.Mountpoint] = &MountGroup{
			MountPoint: p.Mountpoint,
			Device:     p.Device,
			Fstype:     p.Fstype,
			Paths:      []string{path},
		}
	}

	out := make([]MountGroup, 0, len(groups))
	for _, g := range groups {
		slices.Sort(g.Paths)
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b MountGroup) int { return cmp.Compare(a.MountPoint, b.MountPoint) })
	return out
}

// storageGroups resolves paths against the host's partitions. When the
// partition table is unavailable every path becomes its own group.
func storageGroups(paths []string) []MountGroup {
	partitions, err := disk.Partitions(false)
	if err != nil {
		GetLogger().Warn("failed to list partitions, checking paths individually", logger.Error(err))
		out := make([]MountGroup, 0, len(paths))
		for _, p := range paths {
			out = append(out, MountGroup{MountPoint: p, Paths: []string{p}})
		}
		return out
	}
	return groupByMount(paths, partitions, resolveExisting)
}
