// Package tokenizer 封装 cl100k BPE 编码，用于统计对话文本的计费 token 数。
package tokenizer

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Counter 按请求构造：编码器本身无跨请求状态，计数结果对同一文本是确定的。
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter 初始化失败必须向上传播；绝不退化为“假装 0 token”。
func NewCounter() (*Counter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("初始化 %s 编码失败: %w", encodingName, err)
	}
	return &Counter{enc: enc}, nil
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}
