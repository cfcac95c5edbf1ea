package maintenance

import (
	"context"
	"encoding/json"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/security"
)

// Settings keys the security layer consults through SecurityPrefs.
// Stored as JSON-encoded bools so an operator can flip them at runtime
// without a restart, mirroring the original's settings.json overrides.
const (
	KeySafeMode          = "safe_mode"
	KeyAllowWrite        = "allow_write"
	KeyAllowDelete       = "allow_delete"
	KeyAllowRename       = "allow_rename"
	KeyAllowOpenInFolder = "allow_open_in_folder"
	KeyAllowResetIndex   = "allow_reset_index"
)

// SecurityPrefs implements security.PrefsProvider, translating stored
// settings rows into the Prefs struct the Guard consults on every
// operation check. A key with no stored row (or a cache miss classified
// NOT_FOUND) leaves the corresponding field nil, so the Guard falls
// back to its compiled default.
func (m *Manager) SecurityPrefs(ctx context.Context) security.Prefs {
	return security.Prefs{
		SafeMode:          m.cachedBool(ctx, KeySafeMode),
		AllowWrite:        m.cachedBool(ctx, KeyAllowWrite),
		AllowDelete:       m.cachedBool(ctx, KeyAllowDelete),
		AllowRename:       m.cachedBool(ctx, KeyAllowRename),
		AllowOpenInFolder: m.cachedBool(ctx, KeyAllowOpenInFolder),
		AllowResetIndex:   m.cachedBool(ctx, KeyAllowResetIndex),
	}
}

func (m *Manager) cachedBool(ctx context.Context, key string) *bool {
	setting, err := m.settings.Get(ctx, key)
	if err != nil {
		return nil
	}
	var v bool
	if jsonErr := json.Unmarshal([]byte(setting.ValueJSON), &v); jsonErr != nil {
		return nil
	}
	return &v
}

// SettingView is the wire shape of one settings row returned by the
// HTTP settings surface.
type SettingView struct {
	Key     string `json:"key"`
	Value   any    `json:"value"`
	Version int64  `json:"version"`
}

// GetSetting fetches a single setting by key, decoding its JSON value.
func (m *Manager) GetSetting(ctx context.Context, key string) (SettingView, *apperr.Error) {
	setting, err := m.settings.Get(ctx, key)
	if err != nil {
		return SettingView{}, err
	}
	var v any
	_ = json.Unmarshal([]byte(setting.ValueJSON), &v)
	return SettingView{Key: setting.Key, Value: v, Version: setting.Version}, nil
}

// PutSetting writes a setting, invalidating the security layer's view
// of it on the next check.
func (m *Manager) PutSetting(ctx context.Context, key string, value any) (SettingView, *apperr.Error) {
	setting, err := m.settings.Put(ctx, key, value)
	if err != nil {
		return SettingView{}, err
	}
	var v any
	_ = json.Unmarshal([]byte(setting.ValueJSON), &v)
	return SettingView{Key: setting.Key, Value: v, Version: setting.Version}, nil
}

// KnownSettingsKeys lists every key the settings surface recognizes,
// for a GET-all convenience endpoint.
func KnownSettingsKeys() []string {
	return []string{
		KeySafeMode, KeyAllowWrite, KeyAllowDelete,
		KeyAllowRename, KeyAllowOpenInFolder, KeyAllowResetIndex,
	}
}

// AllSettings returns every known setting, omitting keys with no stored
// row rather than erroring.
func (m *Manager) AllSettings(ctx context.Context) []SettingView {
	var out []SettingView
	for _, key := range KnownSettingsKeys() {
		if v, err := m.GetSetting(ctx, key); err == nil {
			out = append(out, v)
		}
	}
	return out
}
