// Package proc reads CPU time accounting from procfs.
//
// Readers take the procfs root (normally "/proc") so they can be pointed at
// a synthetic tree in tests. All counters are USER_HZ clock ticks as the
// kernel reports them; convert with TicksToDuration.
//
//	/proc/stat line:  cpuN user nice system idle iowait irq softirq steal ...
//	Active = user + nice + system + irq + softirq + steal
//	Idle   = idle + iowait
//
// Utilization over a window is ΔActive / (ΔActive + ΔIdle); the sysfs
// counter source instead uses ΔIdle against wall time per cpufreq policy.
package proc
