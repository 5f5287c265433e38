// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/url"
	"regexp"
	"strings"
)

var usernameRe = regexp.MustCompile(`^@?[A-Za-z0-9._]{1,64}$`)

// IsValidLink проверяет ссылку назначения заказа: адрес http(s) с доменом или имя аккаунта.
func IsValidLink(link string) bool {
	link = strings.TrimSpace(link)
	if link == "" || len(link) > 2048 {
		return false
	}

	if strings.Contains(link, "://") {
		u, err := url.Parse(link)
		if err != nil {
			return false
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false
		}
		return strings.Contains(u.Hostname(), ".")
	}

	return usernameRe.MatchString(link)
}

// ParseComments разбивает текст на комментарии по строкам, отбрасывая пустые.
func ParseComments(raw string) []string {
	var res []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if c := strings.TrimSpace(line); c != "" {
			res = append(res, c)
		}
	}
	return res
}
