// Package json 统一的 JSON 编解码入口，底层使用 jsoniter 的标准库兼容配置。
package json

import (
	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal 序列化
func Marshal(v interface{}) ([]byte, error) {
	return codec.Marshal(v)
}

// MarshalIndent 带缩进序列化，快照文件使用两个空格缩进
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return codec.MarshalIndent(v, prefix, indent)
}

// Unmarshal 反序列化
func Unmarshal(data []byte, v interface{}) error {
	return codec.Unmarshal(data, v)
}
