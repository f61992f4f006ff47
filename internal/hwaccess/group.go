package hwaccess

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/maazm7d/droidspaces/pkg/sylog"
)

// groupEntry is one structured /etc/group record. Untouched entries
// serialize back to their exact original line, keeping reconciliation diffs
// minimal (spec §9 redesign note, replacing string-manipulated parsing).
type groupEntry struct {
	raw     string // original line, used verbatim when untouched
	name    string
	passwd  string
	gid     uint32
	gidOK   bool
	members string
	touched bool
}

func parseGroupLine(line string) groupEntry {
	e := groupEntry{raw: line}
	fields := strings.SplitN(line, ":", 4)
	if len(fields) < 3 {
		return e
	}
	e.name = fields[0]
	e.passwd = fields[1]
	if gid, err := strconv.ParseUint(fields[2], 10, 32); err == nil {
		e.gid = uint32(gid)
		e.gidOK = true
	}
	if len(fields) == 4 {
		e.members = fields[3]
	}
	return e
}

func (e groupEntry) serialize() string {
	if !e.touched {
		return e.raw
	}
	return fmt.Sprintf("%s:%s:%d:%s", e.name, e.passwd, e.gid, e.members)
}

// hasWholeWordMember reports whether member appears as a comma-delimited
// whole word in a members field (start-or-comma to end-or-comma boundary).
func hasWholeWordMember(members, member string) bool {
	for _, m := range strings.Split(members, ",") {
		if m == member {
			return true
		}
	}
	return false
}

func addMember(members, member string) string {
	if members == "" {
		return member
	}
	return members + "," + member
}

// ReconcileGroups opens /etc/group at path and, for each GID in gids,
// ensures root is a whole-word member of its group (creating gpu_<gid> if
// no group owns that GID yet), writing the result atomically via a .tmp
// sibling + rename. A missing file is a warning, not an error (spec §4.D
// post-pivot group reconciliation; testable property 1, idempotent group
// reconciliation; testable property 2, atomic group writes).
func ReconcileGroups(sink sylog.Sink, path string, gids []uint32) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			sink.Warningf("%s does not exist, skipping GPU group reconciliation", path)
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	lines := strings.Split(string(content), "\n")
	trailingNewline := strings.HasSuffix(string(content), "\n")
	if trailingNewline {
		lines = lines[:len(lines)-1]
	}

	entries := make([]groupEntry, len(lines))
	for i, line := range lines {
		entries[i] = parseGroupLine(line)
	}

	byGid := map[uint32]int{}
	for i, e := range entries {
		if e.gidOK {
			byGid[e.gid] = i
		}
	}

	changed := false
	for _, gid := range gids {
		if idx, ok := byGid[gid]; ok {
			e := &entries[idx]
			if !hasWholeWordMember(e.members, "root") {
				e.members = addMember(e.members, "root")
				e.touched = true
				changed = true
			}
			continue
		}
		entries = append(entries, groupEntry{
			name: fmt.Sprintf("gpu_%d", gid), passwd: "x", gid: gid, gidOK: true,
			members: "root", touched: true,
		})
		changed = true
	}

	if !changed {
		return nil
	}

	var out strings.Builder
	for _, e := range entries {
		out.WriteString(e.serialize())
		out.WriteByte('\n')
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(out.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}
