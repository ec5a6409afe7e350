package domain

var Tables = []interface{}{
	// WhatsApp gateway
	&WhatsAppSession{},
	&WhatsAppMessageLog{},
}
