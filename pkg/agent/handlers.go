package agent

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/mscrnt/nctmon/pkg/board"
	"github.com/mscrnt/nctmon/pkg/hwmon"
	"github.com/mscrnt/nctmon/pkg/portio"
)

// SysInfo contains system information
type SysInfo struct {
	Timestamp time.Time     `json:"timestamp"`
	Host      HostInfo      `json:"host"`
	CPU       CPUInfo       `json:"cpu"`
	Memory    MemoryInfo    `json:"memory"`
	Disk      []DiskInfo    `json:"disk"`
	Network   []NetworkInfo `json:"network"`
	Process   ProcessInfo   `json:"process"`
}

// HostInfo contains host information
type HostInfo struct {
	Hostname        string `json:"hostname"`
	Uptime          uint64 `json:"uptime"`
	BootTime        uint64 `json:"boot_time"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Architecture    string `json:"architecture"`
}

// CPUInfo contains CPU information
type CPUInfo struct {
	PhysicalCores int       `json:"physical_cores"`
	LogicalCores  int       `json:"logical_cores"`
	ModelName     string    `json:"model_name"`
	Usage         []float64 `json:"usage_percent"`
	Frequency     []float64 `json:"frequency_mhz"`
}

// MemoryInfo contains memory information
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskInfo contains disk information
type DiskInfo struct {
	Path        string  `json:"path"`
	Fstype      string  `json:"fstype"`
	Total       uint64  `json:"total"`
	UsedPercent float64 `json:"used_percent"`
}

// NetworkInfo contains network interface information
type NetworkInfo struct {
	Name      string `json:"name"`
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}

// ProcessInfo describes the reporting process itself
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	RSS        uint64  `json:"rss"`
	NumThreads int32   `json:"num_threads"`
	CPUPercent float64 `json:"cpu_percent"`
}

// CollectSysInfo gathers host information. Sources that fail are left
// empty rather than failing the whole report.
func CollectSysInfo(sampleCPU time.Duration) SysInfo {
	info := SysInfo{
		Timestamp: time.Now(),
	}

	if hostInfo, err := host.Info(); err == nil {
		info.Host = HostInfo{
			Hostname:        hostInfo.Hostname,
			Uptime:          hostInfo.Uptime,
			BootTime:        hostInfo.BootTime,
			OS:              hostInfo.OS,
			Platform:        hostInfo.Platform,
			PlatformVersion: hostInfo.PlatformVersion,
			KernelVersion:   hostInfo.KernelVersion,
			Architecture:    runtime.GOARCH,
		}
	}

	if cores, err := cpu.Counts(false); err == nil {
		info.CPU.PhysicalCores = cores
	}
	if cores, err := cpu.Counts(true); err == nil {
		info.CPU.LogicalCores = cores
	}
	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPU.ModelName = cpuInfo[0].ModelName
		for _, ci := range cpuInfo {
			info.CPU.Frequency = append(info.CPU.Frequency, ci.Mhz)
		}
	}
	if sampleCPU > 0 {
		if usage, err := cpu.Percent(sampleCPU, true); err == nil {
			info.CPU.Usage = usage
		}
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		info.Memory = MemoryInfo{
			Total:       vmStat.Total,
			Available:   vmStat.Available,
			Used:        vmStat.Used,
			UsedPercent: vmStat.UsedPercent,
		}
	}

	if partitions, err := disk.Partitions(false); err == nil {
		for _, partition := range partitions {
			if usage, err := disk.Usage(partition.Mountpoint); err == nil {
				info.Disk = append(info.Disk, DiskInfo{
					Path:        partition.Mountpoint,
					Fstype:      partition.Fstype,
					Total:       usage.Total,
					UsedPercent: usage.UsedPercent,
				})
			}
		}
	}

	if interfaces, err := net.IOCounters(true); err == nil {
		for _, iface := range interfaces {
			if iface.Name == "lo" || strings.HasPrefix(iface.Name, "docker") {
				continue
			}
			info.Network = append(info.Network, NetworkInfo{
				Name:      iface.Name,
				BytesSent: iface.BytesSent,
				BytesRecv: iface.BytesRecv,
			})
		}
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		info.Process.PID = proc.Pid
		if m, err := proc.MemoryInfo(); err == nil {
			info.Process.RSS = m.RSS
		}
		if n, err := proc.NumThreads(); err == nil {
			info.Process.NumThreads = n
		}
		if pct, err := proc.CPUPercent(); err == nil {
			info.Process.CPUPercent = pct
		}
	}

	return info
}

// sysinfoHandler returns system information as JSON
func sysinfoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, CollectSysInfo(200*time.Millisecond))
}

// sensorsHandler returns a snapshot of every channel, optionally filtered
// with ?kind=temperature|voltage|fan
func sensorsHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var filter *board.Kind
		if k := r.URL.Query().Get("kind"); k != "" {
			kind, err := board.ParseKind(k)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			filter = &kind
		}

		snap, err := src.Snapshot()
		if err != nil {
			http.Error(w, "Failed to read sensors: "+err.Error(), chipErrorStatus(err))
			return
		}

		if filter != nil {
			for _, kind := range board.Kinds {
				if kind == *filter {
					continue
				}
				switch kind {
				case board.Temperature:
					snap.Temperatures = nil
				case board.Voltage:
					snap.Voltages = nil
				case board.Fan:
					snap.Fans = nil
				}
			}
		}

		writeJSON(w, snap)
	}
}

// chipHandler returns the chip identity and base address
func chipHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		info, err := src.Chip()
		if err != nil {
			http.Error(w, "Failed to read chip: "+err.Error(), chipErrorStatus(err))
			return
		}

		writeJSON(w, info)
	}
}

// chipErrorStatus maps chip access failures to HTTP status codes
func chipErrorStatus(err error) int {
	switch {
	case errors.Is(err, hwmon.ErrNoBaseAddress), errors.Is(err, portio.ErrPermission):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// LogsResponse contains log data
type LogsResponse struct {
	Lines     []string  `json:"lines"`
	File      string    `json:"file"`
	Timestamp time.Time `json:"timestamp"`
}

// logsHandler returns the tail of the agent's own log file
func logsHandler(logFile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if logFile == "" {
			http.Error(w, "Agent is not logging to a file", http.StatusNotFound)
			return
		}

		tail := 100
		if n, err := strconv.Atoi(r.URL.Query().Get("tail")); err == nil && n > 0 {
			tail = n
		}

		file, err := os.Open(logFile)
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "Log file not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to open log file", http.StatusInternalServerError)
			return
		}
		defer file.Close()

		lines := []string{}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
			if len(lines) > tail {
				lines = lines[1:]
			}
		}
		if err := scanner.Err(); err != nil {
			http.Error(w, "Failed to read log file", http.StatusInternalServerError)
			return
		}

		writeJSON(w, LogsResponse{
			Lines:     lines,
			File:      logFile,
			Timestamp: time.Now(),
		})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
