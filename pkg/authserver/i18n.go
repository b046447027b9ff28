// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys grants return in GrantFailure.Message.
const (
	MsgGrantTypeInvalid   = "grant type invalid"
	MsgCodeNotFound       = "code not found"
	MsgCodeInvalid        = "code invalid"
	MsgCodeExchangeFailed = "code exchange failed"
	MsgNotRegistered      = "not registered"
)

var supportedLanguages = []language.Tag{
	language.English,
	language.SimplifiedChinese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

var translations = map[string]map[language.Tag]string{
	MsgGrantTypeInvalid: {
		language.English:           "The grant type is invalid.",
		language.SimplifiedChinese: "授权类型无效。",
	},
	MsgCodeNotFound: {
		language.English:           "The authorization code was not supplied.",
		language.SimplifiedChinese: "未提供授权码。",
	},
	MsgCodeInvalid: {
		language.English:           "The authorization code is invalid, expired or already used.",
		language.SimplifiedChinese: "授权码无效、已过期或已被使用。",
	},
	MsgCodeExchangeFailed: {
		language.English:           "The authorization code could not be verified. Please sign in again.",
		language.SimplifiedChinese: "无法校验授权码，请重新登录。",
	},
	MsgNotRegistered: {
		language.English:           "No local account is linked to this identity.",
		language.SimplifiedChinese: "该身份尚未绑定本地账户。",
	},
}

var messages = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, byLang := range translations {
		for tag, text := range byLang {
			if err := b.SetString(tag, key, text); err != nil {
				panic(err)
			}
		}
	}
	return b
}

type languageKey struct{}

// WithLanguage stores the response language in ctx.
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, languageKey{}, tag)
}

// LanguageFromContext returns the language stored by WithLanguage, or English.
func LanguageFromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(languageKey{}).(language.Tag); ok {
		return tag
	}
	return language.English
}

// MatchLanguage picks the best supported language for an Accept-Language header.
func MatchLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := languageMatcher.Match(tags...)
	return supportedLanguages[idx]
}

// Localize renders a message key in tag. Unknown keys are returned unchanged.
func Localize(tag language.Tag, key string) string {
	return message.NewPrinter(tag, message.Catalog(messages)).Sprintf(key)
}
