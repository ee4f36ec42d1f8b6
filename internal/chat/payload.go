// Package chat 实现对话转发：请求体做最小改写后透传上游，回复送达后在后台
// 折算用量并落库。
package chat

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"parley/internal/costing"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

func RequestModel(body []byte) string {
	return strings.TrimSpace(gjson.GetBytes(body, "model").String())
}

func IsStream(body []byte) bool {
	return gjson.GetBytes(body, "stream").Bool()
}

func ConversationID(body []byte) string {
	return strings.TrimSpace(gjson.GetBytes(body, "conversation_id").String())
}

// RewriteRequestBody 把对外模型名替换为上游模型名，并统一 max_tokens 系列
// 字段；除此之外请求体原样透传。
func RewriteRequestBody(body []byte, upstreamModel string) ([]byte, error) {
	out := body
	if strings.TrimSpace(upstreamModel) != "" {
		var err error
		out, err = sjson.SetBytes(out, "model", upstreamModel)
		if err != nil {
			return nil, err
		}
	}
	return normalizeMaxTokensInBody(out)
}

// conversation_id 是本服务自己的扩展字段，转发前必须剥掉，上游不认识它。
func StripLocalFields(body []byte) ([]byte, error) {
	if !gjson.GetBytes(body, "conversation_id").Exists() {
		return body, nil
	}
	return sjson.DeleteBytes(body, "conversation_id")
}

func normalizeMaxTokensInBody(body []byte) ([]byte, error) {
	out := body

	if v := gjson.GetBytes(out, "max_output_tokens"); v.Exists() {
		var err error
		out, err = sjson.SetBytes(out, "max_tokens", v.Value())
		if err != nil {
			return nil, err
		}
		out, err = sjson.DeleteBytes(out, "max_output_tokens")
		if err != nil {
			return nil, err
		}
		return sjson.DeleteBytes(out, "max_completion_tokens")
	}

	if v := gjson.GetBytes(out, "max_completion_tokens"); v.Exists() {
		var err error
		out, err = sjson.SetBytes(out, "max_tokens", v.Value())
		if err != nil {
			return nil, err
		}
		return sjson.DeleteBytes(out, "max_completion_tokens")
	}

	return out, nil
}

// ExtractConversation 从请求体里取出在前消息与系统提示词，供计费侧统计
// 输入 token。两种上游的消息形态在这里抹平。
func ExtractConversation(body []byte, provider string) (prior []costing.Message, systemPrompt string) {
	switch provider {
	case ProviderAnthropic:
		systemPrompt = anthropicSystemText(gjson.GetBytes(body, "system"))
	default:
		// OpenAI 形态：system 角色的消息并入系统提示词。
	}

	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		text := contentText(msg.Get("content"))
		if provider != ProviderAnthropic && role == "system" {
			if text != "" {
				if systemPrompt != "" {
					systemPrompt += "\n"
				}
				systemPrompt += text
			}
			return true
		}
		prior = append(prior, costing.Message{Role: role, Content: text})
		return true
	})
	return prior, systemPrompt
}

// FirstUserText 取第一条用户消息的文本，作为问答记录里的"问题"。
func FirstUserText(body []byte) string {
	var out string
	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() != "user" {
			return true
		}
		out = contentText(msg.Get("content"))
		return false
	})
	return out
}

// ExtractAssistantReply 从非流式响应体里取助手回复文本。
func ExtractAssistantReply(respBody []byte, provider string) string {
	switch provider {
	case ProviderAnthropic:
		var b strings.Builder
		gjson.GetBytes(respBody, "content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				b.WriteString(block.Get("text").String())
			}
			return true
		})
		return b.String()
	default:
		return gjson.GetBytes(respBody, "choices.0.message.content").String()
	}
}

// AccumulateStreamReply 把 SSE 流拼回完整的助手回复文本。
func AccumulateStreamReply(raw []byte, provider string) string {
	var b strings.Builder
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		switch provider {
		case ProviderAnthropic:
			if gjson.Get(data, "type").String() == "content_block_delta" {
				b.WriteString(gjson.Get(data, "delta.text").String())
			}
		default:
			b.WriteString(gjson.Get(data, "choices.0.delta.content").String())
		}
	}
	return b.String()
}

// contentText 兼容字符串与分块两种 content 形态，只取文本部分。
func contentText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var b strings.Builder
	content.ForEach(func(_, part gjson.Result) bool {
		if part.Type == gjson.String {
			b.WriteString(part.String())
			return true
		}
		switch part.Get("type").String() {
		case "text", "input_text", "output_text":
			b.WriteString(part.Get("text").String())
		}
		return true
	})
	return b.String()
}

func anthropicSystemText(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	if !system.IsArray() {
		return ""
	}
	var b strings.Builder
	system.ForEach(func(_, part gjson.Result) bool {
		if part.Get("type").String() == "text" {
			b.WriteString(part.Get("text").String())
		}
		return true
	})
	return b.String()
}
