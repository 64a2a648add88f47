// Package base64url кодирует сегменты токена в base64url без выравнивания (RFC 4648 §5).
package base64url

import (
	"encoding/base64"
	"fmt"
)

// strict отвергает выравнивание и ненулевые неиспользуемые биты последнего символа,
// поэтому у каждой последовательности байт ровно одно представление
var strict = base64.RawURLEncoding.Strict()

// Encode кодирует произвольные байты, включая пустой срез
func Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// EncodeString кодирует строку как UTF-8 байты
func EncodeString(s string) string {
	return Encode([]byte(s))
}

// Decode декодирует сегмент. Принимается только каноническая форма без '='.
func Decode(segment string) ([]byte, error) {
	data, err := strict.DecodeString(segment)
	if err != nil {
		return nil, fmt.Errorf("base64url: %w", err)
	}
	return data, nil
}
