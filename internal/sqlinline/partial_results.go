package sqlinline

const QInsertPartialResult = `--sql c3a1e9f2-4b6d-4e8a-9f01-7d2c5b8e3a16
insert into partial_results (run_id, item_index, batch_index, filename, status, stage, error, attempts, credential_index, record, recorded_at)
values ($1::text, $2::int, $3::int, $4::text, $5::text, $6::text, $7::text, $8::int, $9::int, $10::jsonb, $11::timestamptz)
on conflict (run_id, item_index) do update set
    status = excluded.status,
    stage = excluded.stage,
    error = excluded.error,
    attempts = excluded.attempts,
    credential_index = excluded.credential_index,
    record = excluded.record,
    recorded_at = excluded.recorded_at;
`

const QSelectPartialResults = `--sql 5e7b2d40-9c13-4f6a-8b2e-1a4d6c9f0e73
select item_index, batch_index, filename, status, stage, error, attempts, credential_index, record, recorded_at
from partial_results
where run_id = $1::text
order by item_index asc;
`
