package threat

import (
	"regexp"
	"strings"
)

// FindingType é a categoria de ameaça.
type FindingType string

const (
	SQLInjection     FindingType = "sql_injection"
	XSS              FindingType = "xss"
	PathTraversal    FindingType = "path_traversal"
	CommandInjection FindingType = "command_injection"
)

// Finding é um achado: tipo, regra que casou, campo e um trecho curto do valor.
// Excerpt é só para inspeção local; não vai para log nem para a resposta.
type Finding struct {
	Type    FindingType
	Pattern string
	Field   string
	Excerpt string
}

type rule struct {
	typ  FindingType
	name string
	re   *regexp.Regexp
}

var sqlRules = []rule{
	{SQLInjection, "sql_tautology", regexp.MustCompile(`(?i)'\s*(?:or|and)\s+'?\w+'?\s*=\s*'?\w+'?`)},
	{SQLInjection, "sql_union_select", regexp.MustCompile(`(?i)\bunion\b(?:\s+all)?\s+select\b`)},
	{SQLInjection, "sql_stacked_comment", regexp.MustCompile(`;\s*--`)},
	{SQLInjection, "sql_stacked_statement", regexp.MustCompile(`(?i);\s*(?:drop|delete|insert|update|alter|create|truncate|exec(?:ute)?|shutdown)\b`)},
	{SQLInjection, "sql_drop_table", regexp.MustCompile(`(?i)\b(?:drop|truncate)\s+table\b`)},
	{SQLInjection, "sql_quote_comment", regexp.MustCompile(`'\s*(?:--|#|/\*)`)},
	{SQLInjection, "sql_time_based", regexp.MustCompile(`(?i)\b(?:sleep|benchmark|pg_sleep)\s*\(|\bwaitfor\s+delay\b`)},
	{SQLInjection, "sql_stored_proc", regexp.MustCompile(`(?i)\b(?:xp_cmdshell|sp_executesql)\b`)},
}

var xssRules = []rule{
	{XSS, "xss_script_tag", regexp.MustCompile(`(?i)<\s*/?\s*script\b`)},
	{XSS, "xss_script_uri", regexp.MustCompile(`(?i)\b(?:javascript|vbscript)\s*:`)},
	{XSS, "xss_event_handler", regexp.MustCompile(`(?i)\bon(?:error|load|click|dblclick|mouseover|mouseout|mouseenter|mouseleave|focus|blur|submit|change|input|keydown|keyup|keypress|abort|unload|toggle|pointerdown|animationstart)\s*=`)},
	{XSS, "xss_dangerous_tag", regexp.MustCompile(`(?i)<\s*(?:iframe|object|embed|applet|meta|base)\b`)},
	{XSS, "xss_data_html", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
	{XSS, "xss_css_expression", regexp.MustCompile(`(?i)expression\s*\(`)},
}

var traversalRules = []rule{
	{PathTraversal, "traversal_dotdot", regexp.MustCompile(`\.\.[/\\]|[/\\]\.\.(?:$|[/\\])`)},
	{PathTraversal, "traversal_encoded", regexp.MustCompile(`(?i)(?:%2e|%252e){2}(?:%2f|%5c|%252f|/|\\)|\.\.(?:%2f|%5c|%252f)|%c0%ae|%c0%af|%c1%9c`)},
	{PathTraversal, "traversal_null_byte", regexp.MustCompile(`%00`)},
}

// systemPath casa caminhos absolutos sensíveis; o allowlist é aplicado depois.
var systemPath = regexp.MustCompile(`(?i)(?:^|[\s"'=:(,])(/(?:etc|proc|sys|root|boot|dev|bin|sbin|usr/bin|usr/sbin|var/log|var/run)(?:/[^\s"']*)?|[a-z]:\\(?:windows|winnt)(?:\\[^\s"']*)?)`)

var commandRules = []rule{
	{CommandInjection, "cmd_chain", regexp.MustCompile(`(?i)(?:[;&|]|&&|\|\|)\s*(?:rm|cat|ls|id|whoami|uname|wget|curl|nc|ncat|netcat|bash|sh|zsh|python[0-9]?|perl|ruby|php|chmod|chown|kill|nohup|powershell|cmd)\b`)},
	{CommandInjection, "cmd_subshell", regexp.MustCompile("\\$\\([^)]*\\)|`\\s*(?:rm|cat|ls|id|whoami|uname|wget|curl|nc|bash|sh|python[0-9]?|perl|chmod)\\b[^`]*`")},
	{CommandInjection, "cmd_dangerous_call", regexp.MustCompile(`(?i)\b(?:system|popen|passthru|shell_exec|proc_open|pcntl_exec|os\.system|subprocess\.(?:call|run|popen))\s*\(`)},
	{CommandInjection, "cmd_shell_path", regexp.MustCompile(`(?i)/bin/(?:ba|z|k|c|da)?sh\b`)},
	{CommandInjection, "cmd_downloader", regexp.MustCompile(`(?i)\b(?:wget|curl)\s+\S`)},
	{CommandInjection, "cmd_netcat", regexp.MustCompile(`(?i)\bnc\s+-[a-z]*[elp]`)},
}

const excerptPad = 12

func excerpt(s string, loc []int) string {
	start := max(loc[0]-excerptPad, 0)
	end := min(loc[1]+excerptPad, len(s))
	return strings.ToValidUTF8(s[start:end], "")
}

func scan(rules []rule, field, s string, out []Finding) []Finding {
	for _, r := range rules {
		if loc := r.re.FindStringIndex(s); loc != nil {
			out = append(out, Finding{Type: r.typ, Pattern: r.name, Field: field, Excerpt: excerpt(s, loc)})
		}
	}
	return out
}

func scanSystemPaths(field, s string, allowed []string, out []Finding) []Finding {
	for _, m := range systemPath.FindAllStringSubmatchIndex(s, -1) {
		p := s[m[2]:m[3]]
		if isAllowedPath(p, allowed) {
			continue
		}
		return append(out, Finding{Type: PathTraversal, Pattern: "traversal_system_path", Field: field, Excerpt: excerpt(s, m[2:4])})
	}
	return out
}

func isAllowedPath(p string, allowed []string) bool {
	for _, a := range allowed {
		a = strings.TrimRight(a, "/")
		if a != "" && (p == a || strings.HasPrefix(p, a+"/")) {
			return true
		}
	}
	return false
}
