package formatter

import "regexp"

// priorityPrefixRe matches the "<N>" priority that /proc/kmsg and syslog
// writers put in front of each line.
var priorityPrefixRe = regexp.MustCompile(`^<(\d{1,3})>`)

// printkTimeRe matches the "[   12.345678] " timestamp printk adds when
// CONFIG_PRINTK_TIME is set on a console stream.
var printkTimeRe = regexp.MustCompile(`^\[\s*\d+\.\d+\]\s?`)

// subsystemPatterns pull the emitting subsystem out of a kernel message.
// The first match wins; each pattern has one capture group.
//
//	"systemd[1]: Started foo"                 -> systemd
//	"EXT4-fs (sda1): mounted filesystem"      -> EXT4-fs
//	"ata1.00: configured for UDMA/133"        -> ata1.00
//	"usb 1-1: new high-speed USB device"      -> usb
//	"e1000e 0000:00:19.0 eth0: NIC Link is Up" -> e1000e
var subsystemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^([A-Za-z0-9_.-]+)\[\d+\]:`),
	regexp.MustCompile(`^([A-Za-z][\w.-]*)(?: \([^)]*\))?:`),
	regexp.MustCompile(`^([a-z][\w-]*) \S+(?: \S+)?: `),
}

// keywordSubsystems tag messages whose text, not prefix, names the source.
// They are checked before subsystemPatterns.
var keywordSubsystems = []struct {
	re        *regexp.Regexp
	subsystem string
}{
	{regexp.MustCompile(`invoked oom-killer|Out of memory: Kill(ed)? process|oom-kill:`), "oom"},
	{regexp.MustCompile(`segfault at|traps:.*trap`), "segfault"},
	{regexp.MustCompile(`Kernel panic - not syncing`), "panic"},
	{regexp.MustCompile(`\bBUG: |\bWARNING: CPU: `), "bug"},
}
