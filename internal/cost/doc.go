// Package cost prices collaborator usage and keeps running totals per job.
package cost
