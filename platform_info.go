package main

import (
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// Platform names
const (
	PlatformWindows = "windows"
	PlatformDarwin  = "darwin"
	PlatformLinux   = "linux"
)

// Cache configuration
const (
	OSInfoCacheTTL = 30 * time.Second
)

// OSInfoCache provides thread-safe caching for OS information
type OSInfoCache struct {
	osInfo      map[string]interface{}
	lastUpdated time.Time
	mutex       sync.RWMutex
	ttl         time.Duration
}

// Global cache instance
var osInfoCache = &OSInfoCache{
	ttl: OSInfoCacheTTL,
}

// ClearOSInfoCache clears the cached OS information to force refresh
func ClearOSInfoCache() {
	osInfoCache.mutex.Lock()
	defer osInfoCache.mutex.Unlock()
	osInfoCache.osInfo = nil
	osInfoCache.lastUpdated = time.Time{}
}

// IsOSInfoCacheValid returns whether the cache is still valid
func IsOSInfoCacheValid() bool {
	osInfoCache.mutex.RLock()
	defer osInfoCache.mutex.RUnlock()
	return time.Since(osInfoCache.lastUpdated) < osInfoCache.ttl && osInfoCache.osInfo != nil
}

// GetPlatformInfo returns information about this machine for the status bar
// and the privilege hints of the password dialog.
func (a *App) GetPlatformInfo() map[string]interface{} {
	// Check cache first
	osInfoCache.mutex.RLock()
	if time.Since(osInfoCache.lastUpdated) < osInfoCache.ttl && osInfoCache.osInfo != nil {
		info := make(map[string]interface{}, len(osInfoCache.osInfo))
		for k, v := range osInfoCache.osInfo {
			info[k] = v
		}
		osInfoCache.mutex.RUnlock()
		return info
	}
	osInfoCache.mutex.RUnlock()

	info := a.generateOSInfo()

	osInfoCache.mutex.Lock()
	osInfoCache.osInfo = make(map[string]interface{}, len(info))
	for k, v := range info {
		osInfoCache.osInfo[k] = v
	}
	osInfoCache.lastUpdated = time.Now()
	osInfoCache.mutex.Unlock()

	return info
}

// generateOSInfo creates fresh OS information
func (a *App) generateOSInfo() map[string]interface{} {
	program := a.config.config.Privilege.Program
	info := map[string]interface{}{
		"os":                 runtime.GOOS,
		"arch":               runtime.GOARCH,
		"go_version":         runtime.Version(),
		"homeDir":            a.local.HomeDir(),
		"privilegeProgram":   program,
		"privilegeAvailable": privilegeAvailable(program),
	}

	if hostname, err := os.Hostname(); err == nil {
		info["hostname"] = hostname
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		info["shell"] = shell
	}

	hostInfo, err := host.Info()
	if err != nil {
		a.logger.Debug("host info unavailable", zap.Error(err))
		return info
	}
	info["platform"] = hostInfo.Platform
	info["platformFamily"] = hostInfo.PlatformFamily
	info["platformVersion"] = hostInfo.PlatformVersion
	info["kernelVersion"] = hostInfo.KernelVersion
	if hostInfo.Hostname != "" {
		info["hostname"] = hostInfo.Hostname
	}
	return info
}

// privilegeAvailable reports whether the escalation wrapper can be found.
// An empty wrapper runs commands directly and is always available.
func privilegeAvailable(program string) bool {
	if program == "" {
		return true
	}
	if runtime.GOOS == PlatformWindows {
		return false
	}
	_, err := exec.LookPath(program)
	return err == nil
}
