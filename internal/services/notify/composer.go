package notify

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultShortenTimeout = 3 * time.Second

type Shortener interface {
	Shorten(ctx context.Context, url string) (string, error)
}

type LinkPicker interface {
	PickLink(a models.ShipmentArtifacts, phase models.DeliveryPhase) (string, bool)
}

// Message is everything a template may reference.
type Message struct {
	Tag       models.EventTag
	Artifacts models.ShipmentArtifacts
	ShipBy    *time.Time
	Title     string
}

type Composer struct {
	links     LinkPicker
	shortener Shortener
	timeout   time.Duration
	log       *zap.Logger
}

func NewComposer(links LinkPicker, shortener Shortener, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{links: links, shortener: shortener, timeout: DefaultShortenTimeout, log: log}
}

// PhaseFor maps a message class to the delivery phase the link policy evaluates.
func PhaseFor(tag models.EventTag) models.DeliveryPhase {
	switch tag {
	case models.TagLabelReadyToLender:
		return models.PhaseInitialLender
	case models.TagFirstScanToBorrower, models.TagDeliveredToBorrower:
		return models.PhaseTransit
	case models.TagReturnFirstScanToLender:
		return models.PhaseReturn
	default:
		return models.PhaseReminder
	}
}

// linkRequired: без ссылки такое сообщение бессмысленно, лучше не отправлять вовсе.
func linkRequired(tag models.EventTag) bool {
	return tag == models.TagLabelReadyToLender
}

func (c *Composer) Func(m Message) ComposeFunc {
	return func(ctx context.Context) (string, error) { return c.Compose(ctx, m) }
}

func (c *Composer) Compose(ctx context.Context, m Message) (string, error) {
	phase := PhaseFor(m.Tag)
	link, ok := c.links.PickLink(m.Artifacts, phase)
	if !ok {
		if linkRequired(m.Tag) {
			return "", errors.Wrapf(ErrNoCompliantLink, "tag %s phase %s carrier %q", m.Tag, phase, m.Artifacts.Carrier)
		}
		link = ""
	}
	if link != "" {
		link = c.shorten(ctx, link)
	}

	text, err := render(m, link)
	if err != nil {
		return "", err
	}
	return text, nil
}

// shorten never fails: any problem falls back to the original URL.
func (c *Composer) shorten(ctx context.Context, url string) string {
	if c.shortener == nil {
		return url
	}
	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	short, err := c.shortener.Shorten(sctx, url)
	if err != nil || short == "" {
		if err != nil {
			c.log.Debug("shorten failed, using original url", zap.Error(err))
		}
		return url
	}
	return short
}

func render(m Message, link string) (string, error) {
	item := "your item"
	if m.Title != "" {
		item = m.Title
	}
	date := ""
	if m.ShipBy != nil {
		date = m.ShipBy.Format("Mon Jan 2")
	}

	var parts []string
	switch m.Tag {
	case models.TagLabelReadyToLender:
		parts = append(parts, "ShipBox: the shipping label for "+item+" is ready.")
		if date != "" {
			parts = append(parts, "Please ship by "+date+".")
		}
		parts = append(parts, "Label: "+link)
	case models.TagFirstScanToBorrower:
		parts = append(parts, "ShipBox: "+item+" is on its way to you!")
		if link != "" {
			parts = append(parts, "Track it: "+link)
		}
	case models.TagDeliveredToBorrower:
		parts = append(parts, "ShipBox: "+item+" has been delivered. Enjoy your rental!")
		if link != "" {
			parts = append(parts, "Details: "+link)
		}
	case models.TagReturnFirstScanToLender:
		parts = append(parts, "ShipBox: "+item+" is on its way back to you.")
		if link != "" {
			parts = append(parts, "Track it: "+link)
		}
	case models.TagShipByReminderT48:
		parts = append(parts, "ShipBox reminder: "+item+" needs to ship by "+orSoon(date)+".")
		parts = appendLabel(parts, link)
	case models.TagShipByReminderT24:
		parts = append(parts, "ShipBox reminder: "+item+" must ship tomorrow ("+orSoon(date)+").")
		parts = appendLabel(parts, link)
	case models.TagShipByReminderMorning:
		parts = append(parts, "ShipBox: today is the ship-by day for "+item+". Please drop it off today.")
		parts = appendLabel(parts, link)
	default:
		return "", errors.Errorf("no template for tag %q", m.Tag)
	}
	return strings.Join(parts, " "), nil
}

func appendLabel(parts []string, link string) []string {
	if link == "" {
		return parts
	}
	return append(parts, "Label: "+link)
}

func orSoon(date string) string {
	if date == "" {
		return "soon"
	}
	return date
}
