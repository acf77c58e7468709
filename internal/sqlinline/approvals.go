package sqlinline

const QInsertApproval = `--sql d0b64a27-9f15-4c83-b6e0-4a2d7c9f1e58
insert into approval_records (job_id, decision, reviewer, feedback, decided_at)
values ($1, $2, $3, $4, now())
on conflict (job_id) do nothing;
`

const QGetApproval = `--sql 7e2f5c90-4ab8-4d16-93c7-f0d8b5a62e14
select job_id, decision, reviewer, feedback, decided_at
from approval_records
where job_id = $1;
`

const QDeleteApproval = `--sql 3c8a1f46-2d7b-4e09-8f5a-b1c6d4e72a93
delete from approval_records
where job_id = $1;
`
