package sqlinline

const QInsertPhaseResult = `--sql b2e94f61-8c07-4d3a-95b1-e6a2d0f73c58
insert into phase_results (id, job_id, phase, backend, attempt, succeeded, content, error_detail, cost_estimate, duration_ms)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`

const QListPhaseResults = `--sql 5a0d8c32-e71f-4b96-a4d0-3f82c6b1e975
select id, job_id, phase, backend, attempt, succeeded, content, error_detail, cost_estimate, duration_ms, created_at
from phase_results
where job_id = $1
order by created_at asc;
`

const QLatestPhaseContent = `--sql c7f32a85-1d60-4e49-b8c2-94e5a0d6f317
select content
from phase_results
where job_id = $1 and phase = $2 and succeeded
order by created_at desc
limit 1;
`

const QInsertQualityEvaluation = `--sql 0e6b1d94-73a8-4f25-9c07-d1b84e5f2a63
insert into quality_evaluations (job_id, round, score, passed, issues)
values ($1, $2, $3, $4, $5);
`

const QListQualityEvaluations = `--sql f4a8c051-6e93-4d27-80b5-2c7f1e9a4d06
select job_id, round, score, passed, issues, created_at
from quality_evaluations
where job_id = $1
order by created_at asc;
`

const QInsertLedgerEntry = `--sql 82d5f9c4-0b16-4a73-bd48-6e9a2c0f5d81
insert into cost_ledger (id, job_id, phase, backend, prompt_tokens, completion_tokens, cost, estimated)
values ($1, $2, $3, $4, $5, $6, $7, $8);
`

// Ledger rows survive job soft-deletion, so no deleted_at filter here.
const QSumCostByJob = `--sql 29c7e4b0-d853-4f61-a92e-05b8f1d6c347
select coalesce(sum(cost), 0)
from cost_ledger
where job_id = $1;
`
