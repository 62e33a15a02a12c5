package pkg

import "strings"

// Contains check source have target
func Contains(slice []string, val string) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

// Unique 去除空字串與重複值, 保留原順序
func Unique(slice []string) []string {
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		v = strings.TrimSpace(v)
		if v == "" || Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
