package domain

// Preference record keys shared by the migration ladder and the launch-time
// reconciliation.
const (
	RecordUUIDKey        = "UUID"
	RecordNameKey        = "Name"
	ProfileDescKey       = "Description"
	PlayerIsHumanKey     = "IsHuman"
	PlayerProfileUUIDKey = "GtpEngineProfileUUID"
)

// SharedProfileUUID designates the default GTP engine profile that older
// releases let several computer players share.
const SharedProfileUUID = "5b0a1c4e-7f1d-4c55-9a3e-2d6f1b7e0c01"

// Profile is a GTP engine profile record. Keys this type does not model are
// kept in Extra so a record survives a round trip unchanged.
type Profile struct {
	UUID        string
	Name        string
	Description string
	Extra       map[string]any
}

// Player is a player record. Human players carry no profile reference.
type Player struct {
	UUID        string
	Name        string
	IsHuman     bool
	ProfileUUID string
	Extra       map[string]any
}

func ProfileFromMap(m map[string]any) Profile {
	p := Profile{Extra: map[string]any{}}
	for k, v := range m {
		switch k {
		case RecordUUIDKey:
			p.UUID, _ = v.(string)
		case RecordNameKey:
			p.Name, _ = v.(string)
		case ProfileDescKey:
			p.Description, _ = v.(string)
		default:
			p.Extra[k] = v
		}
	}
	return p
}

func (p Profile) Map() map[string]any {
	m := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		m[k] = v
	}
	m[RecordUUIDKey] = p.UUID
	m[RecordNameKey] = p.Name
	if p.Description != "" {
		m[ProfileDescKey] = p.Description
	}
	return m
}

func PlayerFromMap(m map[string]any) Player {
	p := Player{Extra: map[string]any{}}
	for k, v := range m {
		switch k {
		case RecordUUIDKey:
			p.UUID, _ = v.(string)
		case RecordNameKey:
			p.Name, _ = v.(string)
		case PlayerIsHumanKey:
			p.IsHuman, _ = v.(bool)
		case PlayerProfileUUIDKey:
			p.ProfileUUID, _ = v.(string)
		default:
			p.Extra[k] = v
		}
	}
	return p
}

func (p Player) Map() map[string]any {
	m := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		m[k] = v
	}
	m[RecordUUIDKey] = p.UUID
	m[RecordNameKey] = p.Name
	m[PlayerIsHumanKey] = p.IsHuman
	if p.ProfileUUID != "" || !p.IsHuman {
		m[PlayerProfileUUIDKey] = p.ProfileUUID
	}
	return m
}
