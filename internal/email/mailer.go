package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"

	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Template names, also used as metric labels
const (
	TemplateNewGarden    = "new_garden"
	TemplateGardenUpdate = "garden_update"
	TemplateManageGarden = "manage_garden"
)

// NewGardenMail is sent to the site when a visitor submits a garden
type NewGardenMail struct {
	Garden   *models.Garden
	Uploader string
	Email    string
	Phone    string
	Link     string
}

// GardenUpdateMail is sent to the site when a manager edits a garden
type GardenUpdateMail struct {
	Garden  *models.Garden
	Manager *models.GardenManager
}

// ManageGardenMail carries the edit link to a garden manager
type ManageGardenMail struct {
	Name   string
	Garden string
	Link   string
}

// Mailer renders notification templates and hands them to a Sender
type Mailer struct {
	sender    Sender
	templates *template.Template
	logger    logging.Logger
	// OnSend is called after every delivery attempt
	OnSend func(template string, err error)
}

// NewMailer parses the embedded templates
func NewMailer(sender Sender, logger logging.Logger) (*Mailer, error) {
	tpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("error parsing mail templates: %w", err)
	}
	return &Mailer{sender: sender, templates: tpl, logger: logger}, nil
}

// SiteAddress formats the site's mailbox with its name
func SiteAddress(site *models.Site) string {
	return (&mail.Address{Name: site.Name, Address: site.Email}).String()
}

// SendNewGarden notifies the site of a submitted garden
func (m *Mailer) SendNewGarden(ctx context.Context, site *models.Site, data NewGardenMail) error {
	return m.send(ctx, TemplateNewGarden, SiteAddress(site), "New garden added: "+data.Garden.Name, data)
}

// SendGardenUpdate notifies the site that a manager changed a garden
func (m *Mailer) SendGardenUpdate(ctx context.Context, site *models.Site, data GardenUpdateMail) error {
	return m.send(ctx, TemplateGardenUpdate, SiteAddress(site), "Garden updated: "+data.Garden.Name, data)
}

// SendManageGarden mails the edit link to a manager
func (m *Mailer) SendManageGarden(ctx context.Context, manager *models.GardenManager, data ManageGardenMail) error {
	to := (&mail.Address{Name: manager.Name, Address: manager.Email}).String()
	return m.send(ctx, TemplateManageGarden, to, "Manage garden information: "+data.Garden, data)
}

func (m *Mailer) send(ctx context.Context, name, to, subject string, data any) error {
	var body bytes.Buffer
	err := m.templates.ExecuteTemplate(&body, name+".html", data)
	if err == nil {
		err = m.sender.SendMail(ctx, to, subject, body.String())
	}
	if m.OnSend != nil {
		m.OnSend(name, err)
	}
	if err != nil {
		if m.logger != nil {
			m.logger.WithError(err).WithFields(logging.Fields{
				"template": name,
				"to":       to,
			}).Error("Failed to send e-mail")
		}
		return fmt.Errorf("error sending %s e-mail: %w", name, err)
	}
	return nil
}
