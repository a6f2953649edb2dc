package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProcessPaymentResponseMessage] = (*ProcessPaymentResponseCommand)(nil)
	_ gocmd.Commander[ProcessNotificationMessage]    = (*ProcessNotificationCommand)(nil)
	_ gocmd.Commander[SaveStateDataMessage]          = (*SaveStateDataCommand)(nil)
	_ gocmd.Commander[RemoveStateDataMessage]        = (*RemoveStateDataCommand)(nil)
	_ gocmd.Commander[RecordVaultDetailsMessage]     = (*RecordVaultDetailsCommand)(nil)
)
