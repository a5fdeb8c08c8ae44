// Package apperr 定义了检索子系统的错误分类。
// 调用方使用 errors.Is 判断类别，具体原因通过 %w 包装保留。
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput 表示调用方传入了空的或格式错误的必填参数，在任何 I/O 之前同步检测。
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbeddingService 表示外部 embedding 服务调用失败、超时或返回非成功状态。
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrStore 表示持久化层读写失败。
	ErrStore = errors.New("store error")
	// ErrNotFound 表示请求的文档不存在。
	ErrNotFound = errors.New("not found")
	// ErrConflict 表示文档当前状态不允许该操作（例如正在处理时重复导入）。
	ErrConflict = errors.New("conflict")
)

// EmbeddingServiceError 携带上游服务返回的错误信息。
type EmbeddingServiceError struct {
	Message string
	Err     error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service error: %s", e.Message)
}

// Is 让 errors.Is(err, ErrEmbeddingService) 对该类型成立。
func (e *EmbeddingServiceError) Is(target error) bool {
	return target == ErrEmbeddingService
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}

// InvalidInput 构造一个 ErrInvalidInput 类别的错误。
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Store 将持久化层错误包装为 ErrStore 类别，nil 原样返回。
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
