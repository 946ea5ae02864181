package app

import (
	"github.com/itorigin/site/internal/modules/syndication/campaign"
	pkgcron "github.com/itorigin/site/internal/pkg/cron"
)

func registerCronJobs(sched *pkgcron.Scheduler, campaigns *campaign.Service) {
	sched.Register(campaigns.Job())
}
