package s3

import "fmt"

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// FormatBytes 將位元組數轉換為易讀的字串表示
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d bytes", bytes)
	}
	value := float64(bytes)
	unit := ""
	for _, u := range byteUnits {
		value /= 1024
		unit = u
		if value < 1024 {
			break
		}
	}
	return fmt.Sprintf("%.2f %s", value, unit)
}
