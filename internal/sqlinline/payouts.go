package sqlinline

const QInsertReferralPayout = `--sql 1bcc9e1f-1d00-4ba8-aa11-1dae4919cad9
insert into referral_payouts(id, correlation_token, payee, payee_address, amount, status, attempts, ledger_tx_id, last_error, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text::numeric, $6::text, 0, '', $7::text, $8::timestamptz, $8::timestamptz)
on conflict (correlation_token) do nothing;
`

const QGetReferralPayout = `--sql ab251f98-e16b-4c70-b945-17a05f54ea2c
select id::text, correlation_token, payee, payee_address, amount::text, status, attempts,
       ledger_tx_id, last_error, created_at, updated_at
from referral_payouts
where id = $1::uuid;
`

const QGetReferralPayoutByToken = `--sql b4d2b5b8-1a9e-40a6-9959-b4e2af1a1afb
select id::text, correlation_token, payee, payee_address, amount::text, status, attempts,
       ledger_tx_id, last_error, created_at, updated_at
from referral_payouts
where correlation_token = $1::text;
`

const QUpdateReferralPayout = `--sql c2b8691b-18e0-48b6-b40b-d694609d7418
update referral_payouts
set status = $2::text,
    attempts = $3::int,
    ledger_tx_id = $4::text,
    last_error = $5::text,
    updated_at = $6::timestamptz
where id = $1::uuid and status not in ('SENT', 'SKIPPED');
`

const QClaimReferralPayout = `--sql 5e0c7a3d-9b21-4f6e-8d4a-3c17b9e2f860
update referral_payouts
set claimed_until = $3::timestamptz
where id = $1::uuid
  and status = 'PENDING'
  and (claimed_until is null or claimed_until < $2::timestamptz)
returning id::text, correlation_token, payee, payee_address, amount::text, status, attempts,
          ledger_tx_id, last_error, created_at, updated_at;
`

const QReleaseReferralPayout = `--sql e41b6f92-7a08-4c3d-b5e1-9f2d84a0c637
update referral_payouts
set claimed_until = null
where id = $1::uuid;
`

const QRequeueReferralPayout = `--sql 93b67011-89ef-429a-afe0-055e2f146cab
update referral_payouts
set status = 'PENDING', last_error = '', claimed_until = null, updated_at = $2::timestamptz
where id = $1::uuid and status = 'FAILED'
returning id::text, correlation_token, payee, payee_address, amount::text, status, attempts,
          ledger_tx_id, last_error, created_at, updated_at;
`

const QListReferralPayouts = `--sql 8a784b20-d6c5-48dc-9fdc-9073db8d97db
select id::text, correlation_token, payee, payee_address, amount::text, status, attempts,
       ledger_tx_id, last_error, created_at, updated_at
from referral_payouts
where ($1::text = '' or status = $1::text)
order by created_at desc
limit $2::int;
`
