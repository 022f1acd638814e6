package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	initDataMaxAge    = 24 * time.Hour
	initDataClockSkew = 5 * time.Minute
)

// TelegramUser is the user object carried in Mini App initData.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Language  string `json:"language_code"`
}

// ValidateInitData checks the initData signature against the bot token and
// returns the user it describes.
func ValidateInitData(initData string, botToken string) (TelegramUser, error) {
	return validateInitData(initData, botToken, time.Now())
}

func validateInitData(initData string, botToken string, now time.Time) (TelegramUser, error) {
	if initData == "" {
		return TelegramUser{}, fmt.Errorf("initData is empty")
	}
	if botToken == "" {
		return TelegramUser{}, fmt.Errorf("bot token is empty")
	}

	// Some proxies turn "+" into a space in query strings.
	inputs := []string{initData, strings.ReplaceAll(initData, " ", "+")}

	secret := webAppSecret(botToken)
	var lastErr error
	for _, input := range inputs {
		user, err := verifyAndParse(input, secret, now)
		if err == nil {
			return user, nil
		}
		lastErr = err
	}
	return TelegramUser{}, fmt.Errorf("validation failed: %w", lastErr)
}

func verifyAndParse(initData string, secretKey []byte, now time.Time) (TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return TelegramUser{}, fmt.Errorf("parse query: %w", err)
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return TelegramUser{}, fmt.Errorf("hash is missing")
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values.Get(k))
	}

	h := hmac.New(sha256.New, secretKey)
	h.Write([]byte(strings.Join(parts, "\n")))
	calculated := hex.EncodeToString(h.Sum(nil))
	if !hmac.Equal([]byte(calculated), []byte(receivedHash)) {
		return TelegramUser{}, fmt.Errorf("signature mismatch")
	}

	if raw := values.Get("auth_date"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return TelegramUser{}, fmt.Errorf("bad auth_date: %w", err)
		}
		authTime := time.Unix(ts, 0)
		if now.Sub(authTime) > initDataMaxAge {
			return TelegramUser{}, fmt.Errorf("initData expired")
		}
		if authTime.Sub(now) > initDataClockSkew {
			return TelegramUser{}, fmt.Errorf("initData is from the future")
		}
	}

	return parseUser(values.Get("user"))
}

func parseUser(raw string) (TelegramUser, error) {
	if raw == "" {
		return TelegramUser{}, fmt.Errorf("user field is empty")
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return TelegramUser{}, fmt.Errorf("unmarshal user: %w", err)
	}
	if user.ID == 0 {
		return TelegramUser{}, fmt.Errorf("user id is 0")
	}
	return user, nil
}

func webAppSecret(token string) []byte {
	h := hmac.New(sha256.New, []byte("WebAppData"))
	h.Write([]byte(token))
	return h.Sum(nil)
}
