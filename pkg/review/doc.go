/*
Package review joins per-attack aggregates from the state file into an
ROI table: cracks per minute, share of total GPU cost, and marginal
return per cost point. Decision rules turn the table into DROP,
KEEP_ON_TRIAL, BUDGET_ALERT, REORDER and INVESTIGATE recommendations.

Strictly read-only. The engine never mutates state or the attack
order; acting on a recommendation is the operator's call.
*/
package review
