package shared

import (
	"errors"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/storage/inifile"
)

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordRequired = errors.New("password is required")
)

// SetupWizard asks for the account, the location and the optional mail settings then writes
// them to `file`, keeping the sign codes.
func SetupWizard(p *Prompt, file *inifile.File, validate *validator.Validate, translator ut.Translator) (inifile.Setup, error) {
	var (
		s   inifile.Setup
		err error
	)
	p.Printf("[Account] format: dgut + student number, e.g. dgut2023463030604\n")
	if s.Account.Username, err = p.Line("Username: "); err != nil {
		return s, err
	}
	if s.Account.Username == "" {
		return s, ErrUsernameRequired
	}
	if normalized := core.NormalizeUsername(s.Account.Username); normalized != s.Account.Username {
		p.Printf("prefix added: %s\n", normalized)
		s.Account.Username = normalized
	}
	if s.Account.Password, err = p.Secret("Password: "); err != nil {
		return s, err
	}
	if s.Account.Password == "" {
		return s, ErrPasswordRequired
	}

	p.Printf("[Location] campus default: lat %s, lon %s\n", core.DefaultLat, core.DefaultLon)
	if s.Location.Lat, err = p.Line("Latitude [enter for default]: "); err != nil {
		return s, err
	}
	if s.Location.Lon, err = p.Line("Longitude [enter for default]: "); err != nil {
		return s, err
	}
	if s.Location.Lat == "" {
		s.Location.Lat = core.DefaultLat
	}
	if s.Location.Lon == "" {
		s.Location.Lon = core.DefaultLon
	}
	if err = core.ValidateStruct(validate, translator, s.Location); err != nil {
		return s, err
	}

	p.Printf("[Email] optional, enter to skip\n")
	if s.Email.FromAddr, err = p.Line("Sender address: "); err != nil {
		return s, err
	}
	if s.Email.FromAddr != "" {
		if s.Email.AuthCode, err = p.Secret("SMTP auth code: "); err != nil {
			return s, err
		}
		if s.Email.ToAddr, err = p.Line("Recipient address: "); err != nil {
			return s, err
		}
	}
	if err = core.ValidateStruct(validate, translator, s.Email); err != nil {
		return s, err
	}

	if err = file.WriteSetup(s); err != nil {
		return s, err
	}
	p.Printf("config saved to %s\n", file.Path())
	return s, nil
}
