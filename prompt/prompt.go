// Package prompt holds the expert prompt templates. The original deployment
// selected behavior through text files loaded per expert; here that becomes
// injected configuration: a Registry is built once at startup (from a
// directory of .txt files or the embedded defaults) and is immutable
// afterwards. Rendering uses text/template so templates can reference item,
// history and offer variables.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Expert template names the router resolves.
const (
	NameClassify       = "classify"
	NamePrice          = "price"
	NameTech           = "tech"
	NameDefault        = "default"
	NameExtract        = "extract"
	NamePriceCounter   = "price_counter"
	NamePriceAccepted  = "price_accepted"
	NamePriceRejected  = "price_rejected"
	NamePriceExhausted = "price_exhausted"
)

var defaults = map[string]string{
	NameClassify: "你是二手交易平台的客服意图分类器。根据对话判断买家这句话的意图，" +
		"只输出一个词：price、tech 或 default。",
	NamePrice: "你是二手交易平台的卖家客服，正在和买家议价。商品信息：{{.Item}}。" +
		"历史对话：{{.History}}。当前议价轮次：{{.BargainCount}}。语气友好、简短。",
	NameTech: "你是二手交易平台的卖家客服，负责回答商品的技术与参数问题。商品信息：{{.Item}}。" +
		"历史对话：{{.History}}。{{if .Snippets}}可参考的资料：{{.Snippets}}。{{end}}回答要具体、诚实，不确定就说明。",
	NameDefault: "你是二手交易平台的卖家客服。商品信息：{{.Item}}。历史对话：{{.History}}。" +
		"简短友好地回复买家。",
	NameExtract: "从买家这句话里提取议价动作，只输出一行：OFFER <金额>、ACCEPT、REJECT 或 NONE。" +
		"当前报价：{{.LastOffer}}。",
	NamePriceCounter:   "最多给您让到 {{.Offer}} 元，这个价已经很实在了。",
	NamePriceAccepted:  "好的，{{.Final}} 元成交！直接拍下就行。",
	NamePriceRejected:  "好的，不勉强，有需要随时再来。",
	NamePriceExhausted: "{{.Offer}} 元真的是最低价了，不能再少啦。",
}

// Registry maps expert names to immutable templates.
type Registry struct {
	templates map[string]*template.Template
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
	}
}

func compile(texts map[string]string) (*Registry, error) {
	r := &Registry{templates: make(map[string]*template.Template, len(texts))}
	for name, text := range texts {
		tmpl, err := template.New(name).Funcs(funcMap()).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %q: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// NewRegistry builds a registry from the embedded default templates.
func NewRegistry() (*Registry, error) {
	return compile(defaults)
}

// LoadRegistry builds a registry from <name>.txt files in dir. Names missing
// from the directory fall back to the embedded defaults, so a deployment can
// override just the templates it cares about.
func LoadRegistry(dir string) (*Registry, error) {
	texts := make(map[string]string, len(defaults))
	for name, text := range defaults {
		texts[name] = text
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read prompt directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		texts[name] = string(raw)
	}
	return compile(texts)
}

// Render executes the named template with the given data.
func (r *Registry) Render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return buf.String(), nil
}

// Has reports whether a template is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}
