package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	procCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "warden", Subsystem: "process", Name: "cpu_percent", Help: "Process CPU percent"},
		[]string{"name"},
	)
	procRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "warden", Subsystem: "process", Name: "memory_rss_bytes", Help: "Process RSS bytes"},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(procCPU, procRSS)
}

// SampleProcess records one CPU/RSS observation for a verified-running
// process. Called once per watch cycle; failures are ignored since the
// process may have just died.
func SampleProcess(name string, pid int) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	if cpu, err := p.CPUPercent(); err == nil {
		procCPU.WithLabelValues(name).Set(cpu)
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		procRSS.WithLabelValues(name).Set(float64(mi.RSS))
	}
}
