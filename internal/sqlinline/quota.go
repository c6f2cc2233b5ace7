package sqlinline

// QReserveDailyQuota increments the day's counter only while it stays within
// the limit and returns the resulting usage; no row means the reservation was refused.
const QReserveDailyQuota = `--sql 9b4e6a21-3d8c-4f17-a5e0-2c7f9d1b6e48
insert into quota_usage (subject, day, used, updated_at)
values ($1::text, $2::date, $3::int, now())
on conflict (subject, day) do update set
    used = quota_usage.used + excluded.used,
    updated_at = now()
where quota_usage.used + excluded.used <= $4::int
returning used;
`

const QSelectDailyQuota = `--sql 0e1f5c83-7a29-4b6d-9e4a-8c3b2d7f1a05
select used
from quota_usage
where subject = $1::text
  and day = $2::date;
`
