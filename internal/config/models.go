package config

// GraphConfig represents the configuration for the Microsoft Graph mail source
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string
	PageSize     int
}

// OpenAIConfig represents the configuration for the OpenAI-assisted classifier
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	MaxBodySize int
}

// ScoringConfig represents the static inputs of the heuristic engine
type ScoringConfig struct {
	KnownDomains    []string
	ProtectedBrands []string
}

// SMTPConfig represents the configuration for the SMTP ingestion gateway
type SMTPConfig struct {
	Enabled        bool
	ListenAddress  string
	MailboxAddress string
}

// GetGraph returns the Graph mail source configuration
func (c *Config) GetGraph() GraphConfig {
	return GraphConfig{
		TenantID:     c.GetString("graph.tenant_id"),
		ClientID:     c.GetString("graph.client_id"),
		ClientSecret: c.GetString("graph.client_secret"),
		BaseURL:      c.GetString("graph.base_url"),
		PageSize:     c.GetInt("graph.page_size"),
	}
}

// GetOpenAI returns the OpenAI classifier configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("classifier.openai.api_key"),
		ModelName:   c.GetString("classifier.openai.model_name"),
		MaxTokens:   c.GetInt("classifier.openai.max_tokens"),
		Temperature: float32(c.GetFloat64("classifier.openai.temperature")),
		MaxBodySize: c.GetInt("classifier.openai.max_body_size"),
	}
}

// GetScoring returns the heuristic engine configuration
func (c *Config) GetScoring() ScoringConfig {
	return ScoringConfig{
		KnownDomains:    c.GetStringSlice("scoring.known_domains"),
		ProtectedBrands: c.GetStringSlice("scoring.protected_brands"),
	}
}

// GetSMTP returns the SMTP gateway configuration
func (c *Config) GetSMTP() SMTPConfig {
	return SMTPConfig{
		Enabled:        c.GetBool("smtp.enabled"),
		ListenAddress:  c.GetString("smtp.listen_address"),
		MailboxAddress: c.GetString("smtp.mailbox_address"),
	}
}
