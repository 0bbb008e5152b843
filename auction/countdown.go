package auction

import "time"

// EndingSoonThreshold 是拍賣進入「即將結束」的剩餘時間門檻
const EndingSoonThreshold = 5 * time.Minute

// Remaining 計算拍賣的剩餘時間，到期後固定回傳 0，不會是負數
func Remaining(endTime, now time.Time) time.Duration {
	if !now.Before(endTime) {
		return 0
	}
	return endTime.Sub(now)
}

// EndingSoon 回報拍賣是否還在進行但剩餘時間已低於門檻
func EndingSoon(endTime, now time.Time) bool {
	remaining := Remaining(endTime, now)
	return remaining > 0 && remaining < EndingSoonThreshold
}
