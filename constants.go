package oaksub

import "github.com/home-river/OAK-sub001/internal/constants"

// Re-exported defaults for the public API.
const (
	DefaultQueueMaxSize      = constants.DefaultQueueMaxSize
	DefaultDropRateThreshold = constants.DefaultDropRateThreshold

	DefaultHighWatermarkFrac = constants.DefaultHighWatermarkFrac
	DefaultLowWatermarkFrac  = constants.DefaultLowWatermarkFrac
	DefaultHighHitsToTrip    = constants.DefaultHighHitsToTrip
	DefaultLowHitsToClear    = constants.DefaultLowHitsToClear

	DefaultPackagerQueueMaxSize = constants.DefaultPackagerQueueMaxSize
	DefaultPairingBufferHardCap = constants.DefaultPairingBufferHardCap

	DefaultFilterQueueMaxSize = constants.DefaultFilterQueueMaxSize
	DefaultMaxMissedCount     = constants.DefaultMaxMissedCount
	DefaultRecalcInterval     = constants.DefaultRecalcInterval
	DefaultPoolSize           = constants.DefaultPoolSize
	DefaultIoUThreshold       = constants.DefaultIoUThreshold
)

var (
	DefaultMonitorPollInterval = constants.DefaultMonitorPollInterval
	DefaultMonitorStopTimeout  = constants.DefaultMonitorStopTimeout
	DefaultPairingTimeout      = constants.DefaultPairingTimeout
)
