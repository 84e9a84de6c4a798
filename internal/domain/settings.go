package domain

// Settings is the flat key/value configuration edited from the UI.
type Settings struct {
	Theme        string `yaml:"theme" json:"theme"`
	MCPURL       string `yaml:"mcp_url" json:"mcp_url"`
	GeminiAPIKey string `yaml:"gemini_api_key" json:"-"`
}

// SettingsPatch carries the optional fields of a settings update.
type SettingsPatch struct {
	Theme        *string
	MCPURL       *string
	GeminiAPIKey *string
}

// Apply returns a copy of s with the patch fields applied.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.MCPURL != nil {
		s.MCPURL = *p.MCPURL
	}
	if p.GeminiAPIKey != nil {
		s.GeminiAPIKey = *p.GeminiAPIKey
	}
	return s
}
