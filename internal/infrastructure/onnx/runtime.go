package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// Init поднимает окружение ONNX Runtime один раз на процесс.
// libPath: путь к onnxruntime.so/.dylib/.dll, пустая строка означает путь по умолчанию.
func Init(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return envErr
}

// Shutdown освобождает окружение ONNX Runtime.
func Shutdown() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}
