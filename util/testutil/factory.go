package testutil

import (
	"sync"
	"time"

	"github.com/APTrust/evidence-services/models/evidence"
)

var Bloomsday, _ = time.Parse(time.RFC3339, "1904-06-16T15:04:05Z")
var CaptureStart = time.Date(2025, 12, 11, 10, 0, 0, 0, time.UTC)

const (
	ArtifactID = "8c2a4f2e-3d4b-4c1a-9f7e-0a1b2c3d4e5f"
	Actor      = "test-examiner"
	ZeroSha256 = "541b3e9daa09b20bf85fa273e5cbd3e80185aa4ec298e765db87742b70138a53"
	ZeroSha512 = "ca3dff61bb23477aa6087b27508264a6f9126ee3a004f53cb8db942ed345f2f2d229b4b59c859220a1cf1913f34248e3803bab650e849a3d9a709edc09ae4a76"
)

func GetDeviceInfo() evidence.DeviceInfo {
	return evidence.DeviceInfo{
		AppVersion:       "2.1.0",
		Model:            "MacBookPro18,3",
		OSVersion:        "macOS 14.2",
		ScreenResolution: "3024x1964",
	}
}

// StepClock returns a clock that starts at start and advances by
// step on every call. It's safe to share across goroutines.
func StepClock(start time.Time, step time.Duration) func() time.Time {
	var mutex sync.Mutex
	next := start
	return func() time.Time {
		mutex.Lock()
		defer mutex.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}
