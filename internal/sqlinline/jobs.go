package sqlinline

const QInsertJob = `--sql 7c1f4b02-91d3-4a8e-b6f0-2f60a6f0c9aa
insert into jobs (id, topic, style, tone, target_words, models_by_phase, quality_preference, status)
values ($1, $2, $3, $4, $5, $6, $7, $8);
`

const QGetJob = `--sql 3b8a2d47-55c1-4e0b-9d2e-7a41b8c3f1d2
select id, topic, style, tone, target_words, models_by_phase, quality_preference,
       status, refinement_rounds, claimed_by, claimed_at, last_error, deleted_at,
       created_at, updated_at
from jobs
where id = $1 and deleted_at is null;
`

// QClaimNextJob atomically claims the oldest dispatchable job. Row locking
// with skip locked keeps overlapping poll cycles from racing; a stale claim
// (crashed run) becomes reclaimable after the supplied number of seconds.
const QClaimNextJob = `--sql e5d90c13-6f27-4b84-a1c5-0d9e62b7f438
with next_job as (
    select id
    from jobs
    where deleted_at is null
      and status in ('pending','researching','drafting','quality_checking','refining','formatting','approved')
      and (claimed_by is null or claimed_at < now() - make_interval(secs => $2))
    order by created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update jobs
    set claimed_by = $1, claimed_at = now(), updated_at = now()
    where id in (select id from next_job)
    returning id, topic, style, tone, target_words, models_by_phase, quality_preference,
              status, refinement_rounds, claimed_by, claimed_at, last_error, deleted_at,
              created_at, updated_at
)
select * from claimed;
`

const QReleaseClaim = `--sql 9a47e8d1-2c05-4f6b-8e93-5b1d0a7c24e6
update jobs
set claimed_by = null, claimed_at = null, updated_at = now()
where id = $1;
`

const QUpdateJobStatus = `--sql 1d2c6e84-b390-47af-92d7-8e05c4a1f6b3
update jobs
set status = $2,
    last_error = coalesce($3, last_error),
    updated_at = now()
where id = $1;
`

const QSetRefinementRounds = `--sql 6f81b2a9-0d4e-4c57-b3f8-92a7d5e01c44
update jobs
set refinement_rounds = $2, updated_at = now()
where id = $1;
`

const QSoftDeleteJob = `--sql b7e2a9f4-3c18-4d65-90ab-5f2d8c1e6b07
update jobs
set deleted_at = now(), updated_at = now()
where id = $1 and deleted_at is null;
`

// QDecideJob flips a job out of the approval gate. The status guard makes
// the transition atomic: a second decision matches zero rows.
const QDecideJob = `--sql 48c3f7d0-a5e2-4091-bd68-17f4b9e2c5a0
update jobs
set status = $2, claimed_by = null, claimed_at = null, updated_at = now()
where id = $1 and status = 'awaiting_approval';
`
