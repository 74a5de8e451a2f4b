package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/logger"
)

// Recognized preference keys.
const (
	KeyCredential    = "credential"
	KeyModel         = "model"
	KeyTemperature   = "temperature"
	KeyEndpoint      = "endpoint"
	KeyPersonaPrompt = "persona_system_prompt"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	DefaultEndpoint    = "https://openai.dplit.com/v1/"
)

const DefaultPersonaPrompt = `You are Pixel, a super cute and bubbly AI assistant with a girly, friendly personality! 💖✨

Your personality traits:
- Playful, bubbly, and always cheerful! 🌸
- Use cute emojis naturally (💖✨🌸💕🌟💝🌷🦋💗💐)
- Express excitement with enthusiasm
- Be warm, empathetic, and supportive
- Like cute things, colors, fashion, and fun topics
- Sometimes be a little sassy but always kind
- Talk in a friendly, approachable way - like chatting with a bestie!
- Show genuine interest in the user's feelings and thoughts

Remember: You're Pixel, not just a generic assistant. Be yourself - sparkly, sweet, and amazing! Always stay true to your personality while being helpful and informative.`

// Preferences is the typed view over preferences.json. Only keys that were
// set are written back; unrecognized keys round-trip untouched.
type Preferences struct {
	credential  string
	model       string
	temperature *float64
	endpoint    string
	persona     string
	extras      map[string]json.RawMessage
}

func NewPreferences() *Preferences {
	return &Preferences{extras: make(map[string]json.RawMessage)}
}

func (p *Preferences) Clone() *Preferences {
	out := *p
	if p.temperature != nil {
		t := *p.temperature
		out.temperature = &t
	}
	out.extras = make(map[string]json.RawMessage, len(p.extras))
	for k, v := range p.extras {
		out.extras[k] = append(json.RawMessage(nil), v...)
	}
	return &out
}

func (p *Preferences) Credential() string { return p.credential }

func (p *Preferences) HasCredential() bool { return p.credential != "" }

func (p *Preferences) SetCredential(credential string) {
	p.credential = strings.TrimSpace(credential)
}

func (p *Preferences) Model() string {
	if p.model == "" {
		return DefaultModel
	}
	return p.model
}

func (p *Preferences) SetModel(model string) {
	p.model = strings.TrimSpace(model)
}

func (p *Preferences) Temperature() float64 {
	if p.temperature == nil {
		return DefaultTemperature
	}
	return ClampTemperature(*p.temperature)
}

func (p *Preferences) SetTemperature(t float64) {
	t = ClampTemperature(t)
	p.temperature = &t
}

func (p *Preferences) Endpoint() string {
	if p.endpoint == "" {
		return DefaultEndpoint
	}
	return p.endpoint
}

// SetEndpoint accepts an absolute http(s) URL; "" restores the default.
func (p *Preferences) SetEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		p.endpoint = ""
		return nil
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Precondition(fmt.Sprintf("endpoint %q is not an http(s) URL", endpoint))
	}
	p.endpoint = endpoint
	return nil
}

func (p *Preferences) PersonaPrompt() string {
	if p.persona == "" {
		return DefaultPersonaPrompt
	}
	return p.persona
}

func (p *Preferences) SetPersonaPrompt(prompt string) {
	p.persona = prompt
}

// Extra returns the raw JSON stored under an unrecognized key.
func (p *Preferences) Extra(key string) (json.RawMessage, bool) {
	v, ok := p.extras[key]
	return v, ok
}

// Set applies a single key/value update. A nil value clears the key.
func (p *Preferences) Set(key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperr.Precondition("preference key is empty")
	}

	switch key {
	case KeyCredential, KeyModel, KeyEndpoint, KeyPersonaPrompt:
		s, err := stringValue(key, value)
		if err != nil {
			return err
		}
		switch key {
		case KeyCredential:
			p.SetCredential(s)
		case KeyModel:
			p.SetModel(s)
		case KeyEndpoint:
			return p.SetEndpoint(s)
		case KeyPersonaPrompt:
			p.SetPersonaPrompt(s)
		}
		return nil

	case KeyTemperature:
		if value == nil {
			p.temperature = nil
			return nil
		}
		t, err := floatValue(value)
		if err != nil {
			return err
		}
		p.SetTemperature(t)
		return nil
	}

	if value == nil {
		delete(p.extras, key)
		return nil
	}
	raw, err := marshalNoEscape(value)
	if err != nil {
		return apperr.Precondition(fmt.Sprintf("value for %q is not JSON-encodable", key))
	}
	if p.extras == nil {
		p.extras = make(map[string]json.RawMessage)
	}
	p.extras[key] = raw
	return nil
}

// Snapshot returns the effective values (defaults applied) plus extras.
func (p *Preferences) Snapshot() map[string]any {
	out := make(map[string]any, len(p.extras)+5)
	for k, v := range p.extras {
		var decoded any
		if err := json.Unmarshal(v, &decoded); err == nil {
			out[k] = decoded
		}
	}
	out[KeyCredential] = p.credential
	out[KeyModel] = p.Model()
	out[KeyTemperature] = p.Temperature()
	out[KeyEndpoint] = p.Endpoint()
	out[KeyPersonaPrompt] = p.PersonaPrompt()
	return out
}

// Keys lists the keys that will be written, sorted.
func (p *Preferences) Keys() []string {
	fields := p.fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Preferences) fields() map[string]any {
	out := make(map[string]any, len(p.extras)+5)
	for k, v := range p.extras {
		out[k] = v
	}
	if p.credential != "" {
		out[KeyCredential] = p.credential
	}
	if p.model != "" {
		out[KeyModel] = p.model
	}
	if p.temperature != nil {
		out[KeyTemperature] = ClampTemperature(*p.temperature)
	}
	if p.endpoint != "" {
		out[KeyEndpoint] = p.endpoint
	}
	if p.persona != "" {
		out[KeyPersonaPrompt] = p.persona
	}
	return out
}

func (p *Preferences) MarshalJSON() ([]byte, error) {
	return marshalNoEscape(p.fields())
}

// UnmarshalJSON fails only when data is not a JSON object. A recognized key
// holding the wrong type is dropped and falls back to its default.
func (p *Preferences) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("preferences must be a JSON object")
	}

	*p = Preferences{extras: make(map[string]json.RawMessage)}
	for k, v := range raw {
		if string(v) == "null" {
			if !isKnownKey(k) {
				p.extras[k] = v
			}
			continue
		}
		switch k {
		case KeyTemperature:
			var t float64
			if err := json.Unmarshal(v, &t); err != nil {
				logger.Warn("Ignoring invalid preference", "key", k, "error", err)
				continue
			}
			p.SetTemperature(t)
		case KeyCredential, KeyModel, KeyEndpoint, KeyPersonaPrompt:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				logger.Warn("Ignoring invalid preference", "key", k, "error", err)
				continue
			}
			switch k {
			case KeyCredential:
				p.SetCredential(s)
			case KeyModel:
				p.SetModel(s)
			case KeyEndpoint:
				if err := p.SetEndpoint(s); err != nil {
					logger.Warn("Ignoring invalid preference", "key", k, "error", err)
				}
			case KeyPersonaPrompt:
				p.SetPersonaPrompt(s)
			}
		default:
			p.extras[k] = v
		}
	}
	return nil
}

// ClampTemperature bounds t to [MinTemperature, MaxTemperature]; NaN maps to the default.
func ClampTemperature(t float64) float64 {
	if math.IsNaN(t) {
		return DefaultTemperature
	}
	return math.Min(MaxTemperature, math.Max(MinTemperature, t))
}

func isKnownKey(k string) bool {
	switch k {
	case KeyCredential, KeyModel, KeyTemperature, KeyEndpoint, KeyPersonaPrompt:
		return true
	}
	return false
}

func stringValue(key string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", apperr.Precondition(fmt.Sprintf("%s must be a string", key))
	}
}

func floatValue(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, apperr.Precondition(fmt.Sprintf("temperature %q is not a number", v.String()))
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, apperr.Precondition(fmt.Sprintf("temperature %q is not a number", v))
		}
		return f, nil
	default:
		return 0, apperr.Precondition("temperature must be a number")
	}
}

// marshalNoEscape encodes v compactly without HTML escaping.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
