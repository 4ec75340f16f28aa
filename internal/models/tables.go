package models

// Tables lists every model migrated at startup.
var Tables = []interface{}{
	&Tenant{},
	&BotSession{},
	&MenuV2{},
	&LegacyMenu{},
	&Flow{},
	&FlowNode{},
	&FlowEdge{},
	&MessageLog{},
	&Plan{},
	&TrialIntegration{},
	&TrialClient{},
	&HandoffTicket{},
}
