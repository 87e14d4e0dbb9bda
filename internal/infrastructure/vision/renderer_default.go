//go:build !gocv
// +build !gocv

package vision

import "pneumoscan/internal/domain/port"

// NewRenderer возвращает рендерер на чистом Go (сборка без тега gocv).
func NewRenderer() port.OverlayRenderer {
	return &OverlayRenderer{}
}
